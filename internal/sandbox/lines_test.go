package sandbox_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/autopr/internal/sandbox"
)

func TestLineWriter(t *testing.T) {
	t.Run("splits chunks across line boundaries", func(t *testing.T) {
		var seen []string
		w := sandbox.NewLineWriter(func(line string) { seen = append(seen, line) })

		_, _ = w.Write([]byte("build"))
		_, _ = w.Write([]byte("ing...\nhttps://github.com/x/y/pull/1\ndo"))
		_, _ = w.Write([]byte("ne\n"))
		w.Flush()

		want := []string{"building...", "https://github.com/x/y/pull/1", "done"}
		assert.Equal(t, want, w.Lines())
		assert.Equal(t, want, seen)
	})

	t.Run("flush emits unterminated tail once", func(t *testing.T) {
		w := sandbox.NewLineWriter(nil)

		_, _ = w.Write([]byte("a\nb"))
		w.Flush()
		w.Flush()

		assert.Equal(t, []string{"a", "b"}, w.Lines())
	})

	t.Run("strips carriage returns and keeps empty lines", func(t *testing.T) {
		w := sandbox.NewLineWriter(nil)

		_, _ = w.Write([]byte("one\r\n\r\ntwo\r\n"))
		w.Flush()

		assert.Equal(t, []string{"one", "", "two"}, w.Lines())
	})

	t.Run("write reports full length", func(t *testing.T) {
		w := sandbox.NewLineWriter(nil)

		n, err := w.Write([]byte("xyz"))
		assert.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Empty(t, w.Lines())
	})
}

func TestBashCommand(t *testing.T) {
	assert.Equal(t,
		[]string{"/bin/bash", "-l", "-c", "bash /home/user/run.sh"},
		sandbox.BashCommand("  bash /home/user/run.sh \n"),
	)
}

func TestEnvList(t *testing.T) {
	env := sandbox.EnvList(map[string]string{"A": "1", "B": "x=y"})
	assert.ElementsMatch(t, []string{"A=1", "B=x=y"}, env)
}
