package utils_test

import (
	"os"
	"os/exec"
	"time"

	"github.com/jaypipes/ghw/pkg/block"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/piranna/usercore/internal/utils"
	"github.com/piranna/usercore/pkg/schema"
	"github.com/rs/zerolog"
	"github.com/twpayne/go-vfs/v4"
	"github.com/twpayne/go-vfs/v4/vfst"
)

var _ = Describe("utils", func() {
	var fs vfs.FS
	var cleanup func()

	BeforeEach(func() {
		var err error
		fs, cleanup, err = vfst.NewTestFS(map[string]interface{}{
			"/proc/cmdline": "",
		})
		Expect(err).ToNot(HaveOccurred())
		fakeCmdline, _ := fs.RawPath("/proc/cmdline")
		err = os.Setenv("HOST_PROC_CMDLINE", fakeCmdline)
		Expect(err).ToNot(HaveOccurred())
	})
	AfterEach(func() {
		_ = os.Unsetenv("HOST_PROC_CMDLINE")
		cleanup()
	})

	Context("ReadCmdline", func() {
		It("parses the overridden cmdline", func() {
			err := fs.WriteFile("/proc/cmdline", []byte("root=LABEL=users rd.usercore.debug opts=a,b\n"), os.ModePerm)
			Expect(err).ToNot(HaveOccurred())
			c := utils.ReadCmdline()
			Expect(c.Get("root")).To(Equal("LABEL=users"))
			Expect(c.Has("rd.usercore.debug")).To(BeTrue())
			Expect(c.GetList("opts")).To(Equal([]string{"a", "b"}))
		})
		It("is empty when the cmdline can't be read", func() {
			Expect(os.Setenv("HOST_PROC_CMDLINE", "/nonexistent/cmdline")).To(Succeed())
			Expect(utils.ReadCmdline()).To(BeEmpty())
		})
	})

	Context("SetLogger", func() {
		It("logs at debug level when asked on the cmdline", func() {
			Expect(fs.WriteFile("/proc/cmdline", []byte("root=container rd.usercore.debug\n"), os.ModePerm)).To(Succeed())
			utils.SetLogger()
			Expect(utils.Log.GetLevel()).To(Equal(zerolog.DebugLevel))
			Expect(utils.KLog.Logger.GetLevel()).To(Equal(zerolog.DebugLevel))
		})
		It("logs at info level otherwise", func() {
			Expect(fs.WriteFile("/proc/cmdline", []byte("root=container\n"), os.ModePerm)).To(Succeed())
			utils.SetLogger()
			Expect(utils.Log.GetLevel()).To(Equal(zerolog.InfoLevel))
		})
	})

	Context("Reap", func() {
		It("collects a child that exited before anybody waited", func() {
			cmd := exec.Command("/bin/sh", "-c", "exit 0")
			Expect(cmd.Start()).To(Succeed())
			pid := cmd.Process.Pid

			var reaped []int
			Eventually(func() []int {
				reaped = append(reaped, utils.Reap()...)
				return reaped
			}).WithTimeout(5 * time.Second).Should(ContainElement(pid))
		})
	})

	Context("ParseMount", func() {
		It("maps tags to /dev/disk paths", func() {
			Expect(utils.ParseMount("LABEL=users")).To(Equal("/dev/disk/by-label/users"))
			Expect(utils.ParseMount("UUID=1234-abcd")).To(Equal("/dev/disk/by-uuid/1234-abcd"))
			Expect(utils.ParseMount("PARTUUID=5678")).To(Equal("/dev/disk/by-partuuid/5678"))
			Expect(utils.ParseMount("PARTLABEL=data")).To(Equal("/dev/disk/by-partlabel/data"))
			Expect(utils.ParseMount("/dev/sda1")).To(Equal("/dev/sda1"))
		})
	})

	Context("ResolveDevice", func() {
		var original func() ([]*block.Partition, error)
		BeforeEach(func() {
			original = utils.BlockPartitions
			utils.BlockPartitions = func() ([]*block.Partition, error) {
				return []*block.Partition{
					{Name: "vda1", FilesystemLabel: "EFI", Label: "esp", UUID: "aaaa", Type: "vfat"},
					{Name: "vda2", FilesystemLabel: "USERS", Label: "data", UUID: "bbbb", Type: "ext4"},
				}, nil
			}
		})
		AfterEach(func() {
			utils.BlockPartitions = original
		})
		It("returns plain paths untouched", func() {
			Expect(utils.ResolveDevice(fs, "/dev/sdb")).To(Equal("/dev/sdb"))
		})
		It("uses the udev symlinks when present", func() {
			Expect(vfs.MkdirAll(fs, "/dev/disk/by-label", 0755)).To(Succeed())
			Expect(utils.ResolveDevice(fs, "LABEL=USERS")).To(Equal("/dev/disk/by-label/USERS"))
		})
		It("scans the block devices without udev", func() {
			Expect(utils.ResolveDevice(fs, "LABEL=users")).To(Equal("/dev/vda2"))
			Expect(utils.ResolveDevice(fs, "PARTLABEL=esp")).To(Equal("/dev/vda1"))
			Expect(utils.ResolveDevice(fs, "UUID=bbbb")).To(Equal("/dev/vda2"))
		})
		It("fails when nothing matches", func() {
			_, err := utils.ResolveDevice(fs, "LABEL=missing")
			Expect(err).To(HaveOccurred())
		})
	})

	Context("ReadEnv", func() {
		It("Parses correctly an env file", func() {
			err := vfs.MkdirAll(fs, "/etc/usercore", 0755)
			Expect(err).ToNot(HaveOccurred())
			err = fs.WriteFile("/etc/usercore/layout.env", []byte("HOME_ROOT=\"/users\"\nCLEANUP_PATHS=\"/usr /lib/usercore\"\n"), os.ModePerm)
			Expect(err).ToNot(HaveOccurred())
			env, err := utils.ReadEnv(fs, "/etc/usercore/layout.env")
			Expect(err).ToNot(HaveOccurred())
			Expect(env).To(HaveKeyWithValue("HOME_ROOT", "/users"))
			Expect(utils.Fields(env["CLEANUP_PATHS"])).To(Equal([]string{"/usr", "/lib/usercore"}))
		})
		It("returns an empty env for a missing file", func() {
			env, err := utils.ReadEnv(fs, "/etc/usercore/layout.env")
			Expect(err).ToNot(HaveOccurred())
			Expect(env).To(BeEmpty())
		})
	})

	Context("ScrubKernelEnv", func() {
		It("removes the boot parameters from the environment", func() {
			Expect(os.Setenv("root", "/dev/sda1")).To(Succeed())
			Expect(os.Setenv("vga", "0x318")).To(Succeed())
			env := utils.ScrubKernelEnv()
			Expect(env).To(HaveKeyWithValue("root", "/dev/sda1"))
			Expect(env).To(HaveKeyWithValue("vga", "0x318"))
			_, found := os.LookupEnv("root")
			Expect(found).To(BeFalse())
			_, found = os.LookupEnv("vga")
			Expect(found).To(BeFalse())
		})
	})

	Context("slices", func() {
		It("Removes duplicates", func() {
			dups := []string{"a", "b", "c", "d", "b", "a"}
			Expect(utils.UniqueSlice(dups)).To(HaveLen(4))
		})
		It("Cleans up the slice of empty values", func() {
			Expect(utils.CleanupSlice([]string{"", " "})).To(BeEmpty())
		})
	})

	Context("MountToFstab", func() {
		It("renders flags and options", func() {
			f := utils.MountToFstab(schema.MountRequest{
				Source:  "/dev/vda2",
				Target:  "/.rootfs",
				Type:    "ext4",
				Flags:   schema.NODEV | schema.NOSUID,
				Options: []string{"errors=remount-ro"},
			})
			Expect(f.Spec).To(Equal("/dev/vda2"))
			Expect(f.File).To(Equal("/.rootfs"))
			Expect(f.VfsType).To(Equal("ext4"))
			Expect(f.MntOps).To(HaveKey("nodev"))
			Expect(f.MntOps).To(HaveKey("nosuid"))
			Expect(f.MntOps).To(HaveKeyWithValue("errors", "remount-ro"))
		})
	})

	Context("SessionID", func() {
		It("is stable per boot and name", func() {
			boot := utils.NewBootID()
			Expect(utils.SessionID(boot, "alice")).To(Equal(utils.SessionID(boot, "alice")))
			Expect(utils.SessionID(boot, "alice")).ToNot(Equal(utils.SessionID(boot, "bob")))
		})
	})
})
