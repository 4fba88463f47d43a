package console

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sync"
	"time"

	"mktstream/internal/application/port"
)

var ansiSeq = regexp.MustCompile("\r|\033\\[[0-9;]*[A-Za-z]")

type Sink struct {
	mu    sync.Mutex
	out   io.Writer
	plain bool // 非终端输出：去掉控制序列，实时行逐行追加
}

// NewSink 输出到 stdout
func NewSink() port.Sink { return &Sink{out: os.Stdout} }

// NewPlainSink 输出到任意 writer（日志文件、管道），不使用终端控制序列
func NewPlainSink(w io.Writer) port.Sink { return &Sink{out: w, plain: true} }

func (s *Sink) WriteLive(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plain {
		_, err := fmt.Fprintln(s.out, strip(line))
		return err
	}
	_, err := fmt.Fprint(s.out, line) // no newline
	return err
}

// 打印快照行后，留一个空行占位；不立刻重画 live，等下一次变化刷新
func (s *Sink) WriteSnapshot(ts time.Time, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plain {
		_, err := fmt.Fprintf(s.out, "%s %s\n", ts.Format("2006-01-02 15:04:05"), strip(line))
		return err
	}
	_, err := fmt.Fprintf(s.out, "\n%s %s\n\n", ts.Format("2006-01-02 15:04:05"), line)
	return err
}

func (s *Sink) NewLine() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plain {
		return nil
	}
	_, err := fmt.Fprint(s.out, "\n")
	return err
}

func strip(line string) string {
	return ansiSeq.ReplaceAllString(line, "")
}
