package profile_test

import (
	cnst "github.com/piranna/usercore/internal/constants"
	"github.com/piranna/usercore/pkg/profile"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("layout", func() {
	It("uses the defaults with an empty env", func() {
		l := profile.FromEnv(map[string]string{})
		Expect(l).To(Equal(profile.Default()))
		Expect(l.HomeRoot).To(Equal(cnst.HomeRoot))
		Expect(l.AdminName).To(Equal(cnst.AdminName))
		Expect(l.BootOnlyPaths).To(Equal([]string{"/init", "/sbin"}))
	})
	It("overrides paths and names", func() {
		l := profile.FromEnv(map[string]string{
			"HOME_ROOT":             "/users",
			"ADMIN_NAME":            "admin",
			"DEVICE_HELPER":         "/usr/bin/exclfs",
			"DEVICE_HELPER_SUPPORT": "/usr/lib/exclfs /usr/lib/fuse",
			"CLEANUP_PATHS":         "/usr",
		})
		Expect(l.HomeRoot).To(Equal("/users"))
		Expect(l.AdminName).To(Equal("admin"))
		Expect(l.SessionsRoot).To(Equal(cnst.SessionsRoot))
		Expect(l.Devices.Path).To(Equal("/usr/bin/exclfs"))
		Expect(l.Devices.Support).To(Equal([]string{"/usr/lib/exclfs", "/usr/lib/fuse"}))
		Expect(l.CleanupPaths).To(Equal([]string{"/usr"}))
	})
	It("clears a list given empty and ignores empty scalars", func() {
		l := profile.FromEnv(map[string]string{"BOOT_ONLY_PATHS": "", "HOME_ROOT": ""})
		Expect(l.BootOnlyPaths).To(BeEmpty())
		Expect(l.HomeRoot).To(Equal(cnst.HomeRoot))
	})
})
