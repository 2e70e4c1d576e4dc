package op_test

import (
	iofs "io/fs"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/piranna/usercore/pkg/op"
	"github.com/twpayne/go-vfs/v4"
	"github.com/twpayne/go-vfs/v4/vfst"
)

// countingFS counts the existence checks and can make a path appear after some of them.
type countingFS struct {
	vfs.FS
	stats, reads int
	appearAfter  int
	appear       func()
}

func (c *countingFS) Stat(name string) (iofs.FileInfo, error) {
	c.stats++
	if c.appear != nil && c.stats == c.appearAfter {
		c.appear()
	}
	return c.FS.Stat(name)
}

func (c *countingFS) ReadDir(name string) ([]iofs.DirEntry, error) {
	c.reads++
	return c.FS.ReadDir(name)
}

var _ = Describe("Prober", func() {
	var fs *vfst.TestFS
	var cleanup func()
	var counting *countingFS
	var prober op.Prober

	BeforeEach(func() {
		var err error
		fs, cleanup, err = vfst.NewTestFS(map[string]interface{}{
			"/dev/vda":         "",
			"/home/dev/null":   "",
			"/home/dev/zero":   "",
			"/home/empty/only": "",
		})
		Expect(err).ToNot(HaveOccurred())
		counting = &countingFS{FS: fs}
		prober = op.Prober{FS: counting}
	})
	AfterEach(func() {
		cleanup()
	})

	Context("WaitUntilExists", func() {
		It("checks once when the path is there", func() {
			Expect(prober.WaitUntilExists("/dev/vda", 5)).To(Succeed())
			Expect(counting.stats).To(Equal(1))
		})
		It("checks N+1 times before giving up", func() {
			for _, n := range []int{0, 1, 3, 5} {
				counting.stats = 0
				err := prober.WaitUntilExists("/dev/missing", n)
				Expect(err).To(MatchError(op.ErrNotExists))
				Expect(err.Error()).To(Equal("/dev/missing not exists"))
				Expect(counting.stats).To(Equal(n + 1))
			}
		})
		It("succeeds when the path shows up while waiting", func() {
			counting.appearAfter = 3
			counting.appear = func() {
				Expect(fs.WriteFile("/dev/late", []byte{}, os.ModePerm)).To(Succeed())
			}
			Expect(prober.WaitUntilExists("/dev/late", 5)).To(Succeed())
			Expect(counting.stats).To(Equal(3))
		})
	})

	Context("WaitUntilPopulated", func() {
		It("succeeds with more than one entry", func() {
			Expect(prober.WaitUntilPopulated("/home/dev", 5)).To(Succeed())
			Expect(counting.reads).To(Equal(1))
		})
		It("gives up after N+1 reads", func() {
			err := prober.WaitUntilPopulated("/home/empty", 2)
			Expect(err).To(MatchError(op.ErrNotMounted))
			Expect(err.Error()).To(Equal("/home/empty not mounted"))
			Expect(counting.reads).To(Equal(3))
		})
		It("returns read errors without retrying", func() {
			err := prober.WaitUntilPopulated("/home/missing", 5)
			Expect(err).To(HaveOccurred())
			Expect(err).ToNot(MatchError(op.ErrNotMounted))
			Expect(counting.reads).To(Equal(1))
		})
	})
})
