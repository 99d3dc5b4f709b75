package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strings"

	"github.com/starford/inkmirror/internal/apperr"
)

// Command decodes notes by running an external converter. The note bytes
// are written to its stdin and it must print a JSON document:
//
//	{"pages":[{"paragraphs":"...","text":"...","png":"<base64>"}]}
type Command struct {
	Path string
	Args []string
}

type commandOutput struct {
	Pages []commandPage `json:"pages"`
}

type commandPage struct {
	ParagraphText string `json:"paragraphs"`
	RawText       string `json:"text"`
	PNG           []byte `json:"png"`
}

func (p commandPage) Paragraphs() string { return p.ParagraphText }
func (p commandPage) Text() string       { return p.RawText }

func (p commandPage) Image() (image.Image, error) {
	if len(p.PNG) == 0 {
		return nil, fmt.Errorf("%w: page has no image", apperr.ErrRender)
	}
	img, err := png.Decode(bytes.NewReader(p.PNG))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrRender, err)
	}
	return img, nil
}

// Decode runs the converter and parses its output.
func (c *Command) Decode(ctx context.Context, data []byte) ([]Page, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%w: %s: %v: %s", apperr.ErrDecode, c.Path, err, msg)
		}
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrDecode, c.Path, err)
	}

	var out commandOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("%w: parse converter output: %v", apperr.ErrDecode, err)
	}
	pages := make([]Page, len(out.Pages))
	for i, p := range out.Pages {
		pages[i] = p
	}
	return pages, nil
}
