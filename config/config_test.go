package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"# ambientd",
		"",
		"listen_addr=0.0.0.0:3546",
		"  color_range = 20000  ",
		"   # indented comment",
		"empty=",
		"url=http://host/?a=b",
	}, "\n")

	values, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatal("Parse:", err)
	}

	assertEq(t, map[string]string{
		"listen_addr": "0.0.0.0:3546",
		"color_range": "20000",
		"empty":       "",
		"url":         "http://host/?a=b",
	}, values)
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{"novalue", "=value"} {
		if _, err := Parse(strings.NewReader(input)); err == nil {
			t.Errorf("Parse(%q): expected error", input)
		}
	}
}

func TestStoreCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")

	s, err := Open(path)
	if err != nil {
		t.Fatal("Open:", err)
	}
	assertEq(t, map[string]string{}, s.All())

	if _, err := os.Stat(path); err != nil {
		t.Error("config file not created:", err)
	}
}

func TestStoreUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("# comment\nb=2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatal("Open:", err)
	}

	if err := s.Update(map[string]string{"a": "1", "b": "3"}); err != nil {
		t.Fatal("Update:", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	assertEq(t, "a=1\nb=3\n", string(b))

	reopened, err := Open(path)
	if err != nil {
		t.Fatal("Open:", err)
	}
	assertEq(t, s.All(), reopened.All())
}

func TestStoreUpdateRejectsInvalid(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "config"))
	if err != nil {
		t.Fatal("Open:", err)
	}

	for _, values := range []map[string]string{
		{"": "x"},
		{"a=b": "x"},
		{"a": "line\nbreak"},
	} {
		if err := s.Update(values); err == nil {
			t.Errorf("Update(%q): expected error", values)
		}
	}
	assertEq(t, map[string]string{}, s.All())
}

func TestStoreDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("listen_addr=127.0.0.1:80\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatal("Open:", err)
	}

	err = s.Defaults(map[string]string{
		"listen_addr": "0.0.0.0:3546",
		"color_range": "20000",
	})
	if err != nil {
		t.Fatal("Defaults:", err)
	}

	assertEq(t, map[string]string{
		"listen_addr": "127.0.0.1:80",
		"color_range": "20000",
	}, s.All())
}

func TestStoreTypedGetters(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "config"))
	if err != nil {
		t.Fatal("Open:", err)
	}

	err = s.Update(map[string]string{
		"int":      "42",
		"intfloat": "42.7",
		"float":    "0.025",
		"dur":      "1m30s",
		"secs":     "180",
		"bad":      "nope",
		"empty":    "",
	})
	if err != nil {
		t.Fatal("Update:", err)
	}

	assertEq(t, 42, s.Int("int", 0))
	assertEq(t, 42, s.Int("intfloat", 0))
	assertEq(t, 7, s.Int("bad", 7))
	assertEq(t, 7, s.Int("missing", 7))
	assertEq(t, 0.025, s.Float("float", 0))
	assertEq(t, 90*time.Second, s.Duration("dur", 0))
	assertEq(t, 180*time.Second, s.Duration("secs", 0))
	assertEq(t, time.Second, s.Duration("bad", time.Second))
	assertEq(t, "def", s.String("empty", "def"))
	assertEq(t, "nope", s.String("bad", "def"))
}

func assertEq[T any](t *testing.T, expected, actual T, opts ...cmp.Option) {
	t.Helper()

	if diff := cmp.Diff(expected, actual, opts...); diff != "" {
		t.Errorf("unexpected diff (-want +got):\n%s", diff)
	}
}
