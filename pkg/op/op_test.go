package op_test

import (
	"errors"
	iofs "io/fs"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/piranna/usercore/internal/constants"
	"github.com/piranna/usercore/internal/mocks"
	"github.com/piranna/usercore/pkg/op"
	"github.com/piranna/usercore/pkg/schema"
	"github.com/twpayne/go-vfs/v4"
	"github.com/twpayne/go-vfs/v4/vfst"
)

var _ = Describe("operations", func() {
	var fs *vfst.TestFS
	var cleanup func()
	var mounter *mocks.FakeMounter

	BeforeEach(func() {
		var err error
		fs, cleanup, err = vfst.NewTestFS(map[string]interface{}{
			"/home/alice/init": &vfst.File{Perm: 0o755, Contents: []byte("#!/bin/sh\n")},
			"/home/bob/init":   &vfst.Symlink{Target: "/bin/sh"},
			"/home/carol/init": &vfst.Dir{Perm: 0o755},
			"/proc/filesystems": "nodev\tsysfs\nnodev\ttmpfs\n\text4\nnodev\tproc\n\tvfat\n",
		})
		Expect(err).ToNot(HaveOccurred())
		mounter = mocks.NewFakeMounter(fs)
	})
	AfterEach(func() {
		cleanup()
	})

	Context("VerifyInit", func() {
		It("accepts a regular file owned by the home owner", func() {
			uid, gid, err := op.VerifyInit(fs, "/home/alice", "/home/alice/init")
			Expect(err).ToNot(HaveOccurred())
			Expect(uid).To(Equal(uint32(os.Getuid())))
			Expect(gid).To(Equal(uint32(os.Getgid())))
		})
		It("refuses symlinks", func() {
			_, _, err := op.VerifyInit(fs, "/home/bob", "/home/bob/init")
			Expect(err).To(MatchError(op.ErrInitNotRegular))
		})
		It("refuses directories", func() {
			_, _, err := op.VerifyInit(fs, "/home/carol", "/home/carol/init")
			Expect(err).To(MatchError(op.ErrInitNotRegular))
		})
		It("refuses an init owned by somebody else", func() {
			_, _, err := op.VerifyInit(mocks.OwnerFS{FS: fs, Path: "/home/alice/init", UID: 4242, GID: 4242}, "/home/alice", "/home/alice/init")
			Expect(err).To(MatchError(op.ErrOwnerMismatch))
		})
		It("fails on a missing init", func() {
			_, _, err := op.VerifyInit(fs, "/home/dave", "/home/dave/init")
			Expect(errors.Is(err, iofs.ErrNotExist)).To(BeTrue())
		})
	})

	Context("MountOperation", func() {
		It("mounts and refuses to mount twice", func() {
			o := op.TmpfsMount("/tmp", schema.NODEV|schema.NOSUID, "mode=1777")
			Expect(o.Run(mounter)).To(Succeed())
			Expect(o.Run(mounter)).To(MatchError(constants.ErrAlreadyMounted))
			Expect(mounter.Calls()).To(Equal([]string{"mount tmpfs tmpfs /tmp"}))
			Expect(o.FstabEntry.File).To(Equal("/tmp"))
			Expect(o.FstabEntry.MntOps).To(HaveKeyWithValue("mode", "1777"))
		})
		It("rejects invalid overlays before mounting", func() {
			_, err := op.OverlayMount(fs, schema.OverlaySpec{Lower: []string{"/"}, Upper: "/x", Work: "/x"}, "/.overlayfs", 0)
			Expect(err).To(MatchError(schema.ErrInvalidOverlay))
			Expect(mounter.Calls()).To(BeEmpty())
		})
		It("creates upper and work directories", func() {
			o, err := op.OverlayMount(fs, schema.OverlaySpec{Lower: []string{"/"}, Upper: "/.rootfs/rootfs", Work: "/.rootfs/workdir"}, "/.overlayfs", 0)
			Expect(err).ToNot(HaveOccurred())
			Expect(o.Run(mounter)).To(Succeed())
			Expect(fs.Stat("/.rootfs/rootfs")).To(Satisfy(iofs.FileInfo.IsDir))
			Expect(fs.Stat("/.rootfs/workdir")).To(Satisfy(iofs.FileInfo.IsDir))
			req, ok := mounter.Request("/.overlayfs")
			Expect(ok).To(BeTrue())
			Expect(req.Options).To(ContainElement("lowerdir=/"))
		})
	})

	Context("SessionView", func() {
		It("mounts the overlay and the kernel filesystems in order", func() {
			o, err := op.OverlayMount(fs, schema.OverlaySpec{Lower: []string{"/"}, Upper: "/home/alice", Work: "/home/.workdirs/alice"}, "/run/sessions/alice", schema.NOSUID)
			Expect(err).ToNot(HaveOccurred())
			v := op.NewSessionView(mounter, "/run/sessions/alice", o, "/home/proc", "/home/dev")
			Expect(v.Prepare()).To(Succeed())
			Expect(mounter.Calls()).To(Equal([]string{
				"mount overlay overlay /run/sessions/alice",
				"mount none /home/proc /run/sessions/alice/proc",
				"mount tmpfs tmpfs /run/sessions/alice/tmp",
				"mount none /home/dev /run/sessions/alice/dev",
			}))
		})
		It("unmounts what it mounted when something fails", func() {
			mounter.FailOn["/run/sessions/alice/tmp"] = errors.New("boom")
			o, err := op.OverlayMount(fs, schema.OverlaySpec{Lower: []string{"/"}, Upper: "/home/alice", Work: "/home/.workdirs/alice"}, "/run/sessions/alice", schema.NOSUID)
			Expect(err).ToNot(HaveOccurred())
			v := op.NewSessionView(mounter, "/run/sessions/alice", o, "/proc", "/dev")
			Expect(v.Prepare()).To(MatchError("boom"))
			Expect(mounter.Calls()[3:]).To(Equal([]string{
				"unmount /run/sessions/alice/proc",
				"unmount /run/sessions/alice",
			}))
		})
	})

	Context("SyscallMounter", func() {
		It("lists the block filesystems in kernel order", func() {
			m := op.NewSyscallMounter(fs)
			Expect(m.BlockFilesystems()).To(Equal([]string{"ext4", "vfat"}))
		})
	})

	Context("ExclusiveDeviceHelper", func() {
		It("is not available when missing", func() {
			h := op.ExclusiveDeviceHelper{FS: fs, Path: "/bin/exclfs"}
			Expect(h.Available()).To(BeFalse())
		})
		It("removes itself and its support files", func() {
			Expect(vfs.MkdirAll(fs, "/bin", 0o755)).To(Succeed())
			Expect(fs.WriteFile("/bin/exclfs", []byte("#!/bin/sh\n"), 0o755)).To(Succeed())
			Expect(vfs.MkdirAll(fs, "/lib/exclfs", 0o755)).To(Succeed())
			h := op.ExclusiveDeviceHelper{FS: fs, Path: "/bin/exclfs", Support: []string{"/lib/exclfs"}}
			Expect(h.Available()).To(BeTrue())
			Expect(h.Reclaim()).To(Succeed())
			_, err := fs.Stat("/bin/exclfs")
			Expect(err).To(MatchError(iofs.ErrNotExist))
			_, err = fs.Stat("/lib/exclfs")
			Expect(err).To(MatchError(iofs.ErrNotExist))
		})
		It("runs detached and reports on the console", func() {
			h := op.ExclusiveDeviceHelper{FS: fs, Path: "/bin/exclfs"}
			cmd := h.Command("/bin/exclfs", "/home/dev")
			Expect(cmd.Args).To(Equal([]string{"/bin/exclfs", "/dev", "/home/dev", "-o", "ownerPerm=true"}))
			Expect(cmd.Stderr).To(BeIdenticalTo(os.Stderr))
			Expect(cmd.Stdout).To(BeIdenticalTo(os.Stdout))
			Expect(cmd.SysProcAttr.Setsid).To(BeTrue())
		})
	})

	Context("ExecLauncher", func() {
		session := schema.UserSession{
			Name: "alice",
			View: "/run/sessions/alice",
			Init: "/init",
			UID:  1001,
			GID:  1002,
		}

		It("drops to the owner of the home inside its view", func() {
			cmd := op.ExecLauncher{}.Command(session)
			Expect(cmd.Path).To(Equal("/init"))
			Expect(cmd.Dir).To(Equal("/"))
			Expect(cmd.SysProcAttr.Chroot).To(Equal("/run/sessions/alice"))
			Expect(cmd.SysProcAttr.Setsid).To(BeTrue())
			Expect(cmd.SysProcAttr.Credential).ToNot(BeNil())
			Expect(cmd.SysProcAttr.Credential.Uid).To(Equal(uint32(1001)))
			Expect(cmd.SysProcAttr.Credential.Gid).To(Equal(uint32(1002)))
			Expect(cmd.SysProcAttr.Credential.Groups).To(BeEmpty())
			Expect(cmd.SysProcAttr.Credential.Groups).ToNot(BeNil())
		})
		It("only passes the session environment", func() {
			Expect(os.Setenv("USERCORE_SECRET", "leak")).To(Succeed())
			defer os.Unsetenv("USERCORE_SECRET")
			cmd := op.ExecLauncher{}.Command(session)
			Expect(cmd.Env).To(Equal([]string{"PATH=/bin", "LD_LIBRARY_PATH=/lib"}))
		})
		It("uses the given environment", func() {
			cmd := op.ExecLauncher{Env: []string{"PATH=/bin"}}.Command(session)
			Expect(cmd.Env).To(Equal([]string{"PATH=/bin"}))
		})
	})
})
