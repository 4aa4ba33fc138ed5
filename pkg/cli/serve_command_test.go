package cli

import (
	"testing"

	"github.com/urfave/cli/v2"
)

func TestServeCommandStreamingFlag(t *testing.T) {
	var flag *cli.BoolFlag
	for _, f := range serveCommand().Flags {
		if bf, ok := f.(*cli.BoolFlag); ok && bf.Name == "streaming" {
			flag = bf
		}
	}
	if flag == nil {
		t.Fatal("Expected serve to expose a streaming flag")
	}
	if !flag.Value {
		t.Error("Expected streaming to be advertised by default")
	}
}
