package wsi

import (
	"fmt"
	"strings"
	"testing"

	. "github.com/janelia-flyem/go/gocheck"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

type WsiSuite struct{}

var _ = Suite(&WsiSuite{})

func (s *WsiSuite) TestErrorKinds(c *C) {
	err := NotFoundf("slide %q", "abc.svs")
	c.Assert(ErrorKind(err), Equals, ErrNotFound)
	c.Assert(err, ErrorMatches, `slide "abc.svs": not found`)

	err = DecodeError(ErrIO, "tile %d", 3)
	c.Assert(ErrorKind(err), Equals, ErrDecode)

	err = IOError(ErrDecode, "write %s", "x")
	c.Assert(ErrorKind(err), Equals, ErrIO)

	c.Assert(ErrorKind(nil), IsNil)
	c.Assert(ErrorKind(ErrNotFound), Equals, ErrNotFound)
}

func (s *WsiSuite) TestCommand(c *C) {
	cmd := Command{"convert", "slides", "workers=4", "gs://bucket/out?a=b"}
	c.Assert(cmd.Name(), Equals, "convert")
	c.Assert(cmd.Argument(1), Equals, "slides")
	c.Assert(cmd.Argument(2), Equals, "gs://bucket/out?a=b")
	c.Assert(cmd.Argument(3), Equals, "")

	v, found := cmd.Setting("workers")
	c.Assert(found, Equals, true)
	c.Assert(v, Equals, "4")

	_, found = cmd.Setting("tilesize")
	c.Assert(found, Equals, false)
	c.Assert(cmd.String(), Equals, "convert slides workers=4 gs://bucket/out?a=b")
}

func (s *WsiSuite) TestConvertToAbsolute(c *C) {
	p, err := ConvertToAbsolute("logs/server.log", "/etc/wsiview")
	c.Assert(err, IsNil)
	c.Assert(p, Equals, "/etc/wsiview/logs/server.log")

	p, err = ConvertToAbsolute("/var/log/wsiview.log", "/etc/wsiview")
	c.Assert(err, IsNil)
	c.Assert(p, Equals, "/var/log/wsiview.log")
}

func (s *WsiSuite) TestVersion(c *C) {
	c.Assert(Version.Major, Equals, uint64(0))
	c.Assert(Version.String(), Equals, "0.4.1")
}

// recordingLogger keeps every formatted message.
type recordingLogger struct {
	msgs []string
}

func (l *recordingLogger) record(format string, args ...interface{}) {
	l.msgs = append(l.msgs, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Debugf(format string, args ...interface{})   { l.record(format, args...) }
func (l *recordingLogger) Infof(format string, args ...interface{})    { l.record(format, args...) }
func (l *recordingLogger) Warningf(format string, args ...interface{}) { l.record(format, args...) }
func (l *recordingLogger) Errorf(format string, args ...interface{})   { l.record(format, args...) }
func (l *recordingLogger) Shutdown()                                   {}

func (s *WsiSuite) TestTimeLogSingleLine(c *C) {
	saved := logger
	defer func() { logger = saved }()
	rec := &recordingLogger{}
	logger = rec

	timedLog := NewTimeLog()
	timedLog.Infof("Generated level %d\n", 3)
	timedLog.Infof("Opened slide %q", "a.svs")
	c.Assert(rec.msgs, HasLen, 2)
	c.Assert(rec.msgs[0], Matches, `Generated level 3: \S+\n`)
	c.Assert(rec.msgs[1], Matches, `Opened slide "a.svs": \S+\n`)
	for _, msg := range rec.msgs {
		c.Assert(strings.Count(msg, "\n"), Equals, 1)
	}
}
