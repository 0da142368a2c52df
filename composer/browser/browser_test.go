package browser

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		command string
		name    string
		args    []string
	}{
		{`firefox`, `firefox`, []string{}},
		{`firefox --private-window`, `firefox`, []string{`--private-window`}},
		{`  open   -a  Safari `, `open`, []string{`-a`, `Safari`}},
	}
	for _, c := range cases {
		name, args, err := Split(c.command)
		if err != nil {
			t.Fatalf(`%q: %v`, c.command, err)
		}
		if name != c.name || !reflect.DeepEqual(args, c.args) {
			t.Fatalf(`%q split into %q %v, want %q %v`, c.command, name, args, c.name, c.args)
		}
	}
}

func TestSplitEmpty(t *testing.T) {
	for _, command := range []string{``, `   `} {
		if _, _, err := Split(command); err == nil {
			t.Fatalf(`%q: expected an error`, command)
		}
	}
}
