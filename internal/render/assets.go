package render

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

// ErrStylesNotFound is returned when the stylesheet is missing on disk.
var ErrStylesNotFound = errors.New("CSS file not found")

const (
	OrangeSVG           = "orange.svg"
	BlueSVG             = "blue.svg"
	FontsDir            = "fonts"
	FontRegular         = "FoundersGrotesk-Regular.otf"
	FontRegularItalic   = "FoundersGrotesk-RegularItalic.otf"
	FontMedium          = "FoundersGrotesk-Medium.otf"
	FontPermanentMarker = "PermanentMarker-Regular.ttf"
)

// Assets are the self-contained resources embedded in every rendered page.
type Assets struct {
	// CSS is the stylesheet with font URLs replaced by data URIs.
	CSS string
	// OrangeSVG and BlueSVG are base64 encoded card backgrounds.
	OrangeSVG string
	BlueSVG   string
}

// Fonts holds base64 encoded font files.
type Fonts struct {
	Regular         string
	Medium          string
	PermanentMarker string
}

// Loader reads assets from disk. Paths are resolved on every call so edits
// to the files are picked up without a restart.
type Loader struct {
	StylesPath string
	Dir        string
}

// NewLoader creates a Loader for a stylesheet and an assets directory.
func NewLoader(stylesPath, dir string) *Loader {
	return &Loader{StylesPath: stylesPath, Dir: dir}
}

// Styles returns the raw stylesheet.
func (l *Loader) Styles() (string, error) {
	raw, err := os.ReadFile(l.StylesPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w at %s", ErrStylesNotFound, l.StylesPath)
	}
	if err != nil {
		return "", fmt.Errorf("reading styles: %w", err)
	}
	return string(raw), nil
}

// SVGs returns the orange and blue card backgrounds as base64.
func (l *Loader) SVGs() (orange, blue string, err error) {
	orange, err = readBase64(filepath.Join(l.Dir, OrangeSVG))
	if err != nil {
		return "", "", err
	}
	blue, err = readBase64(filepath.Join(l.Dir, BlueSVG))
	if err != nil {
		return "", "", err
	}
	return orange, blue, nil
}

// Fonts returns the embeddable fonts as base64.
func (l *Loader) Fonts() (Fonts, error) {
	dir := filepath.Join(l.Dir, FontsDir)
	var f Fonts
	var err error
	if f.Regular, err = readBase64(filepath.Join(dir, FontRegular)); err != nil {
		return Fonts{}, err
	}
	if f.Medium, err = readBase64(filepath.Join(dir, FontMedium)); err != nil {
		return Fonts{}, err
	}
	if f.PermanentMarker, err = readBase64(filepath.Join(dir, FontPermanentMarker)); err != nil {
		return Fonts{}, err
	}
	return f, nil
}

// Load reads every asset. step, when non-nil, is called before each phase
// with a human-readable description.
func (l *Loader) Load(step func(msg string)) (*Assets, error) {
	if step == nil {
		step = func(string) {}
	}

	step("Reading CSS and assets...")
	css, err := l.Styles()
	if err != nil {
		return nil, err
	}

	step("Reading SVG files...")
	orange, blue, err := l.SVGs()
	if err != nil {
		return nil, err
	}

	step("Loading fonts...")
	fonts, err := l.Fonts()
	if err != nil {
		return nil, err
	}

	return &Assets{
		CSS:       EmbedFonts(css, fonts),
		OrangeSVG: orange,
		BlueSVG:   blue,
	}, nil
}

var fontRefs = []struct {
	re     *regexp.Regexp
	mime   string
	format string
	data   func(Fonts) string
}{
	{fontURL(FontRegular, "opentype"), "font/opentype", "opentype", func(f Fonts) string { return f.Regular }},
	// No italic cut is shipped; the regular face stands in.
	{fontURL(FontRegularItalic, "opentype"), "font/opentype", "opentype", func(f Fonts) string { return f.Regular }},
	{fontURL(FontMedium, "opentype"), "font/opentype", "opentype", func(f Fonts) string { return f.Medium }},
	{fontURL(FontPermanentMarker, "truetype"), "font/truetype", "truetype", func(f Fonts) string { return f.PermanentMarker }},
}

func fontURL(file, format string) *regexp.Regexp {
	return regexp.MustCompile(`url\('\./assets/fonts/` + regexp.QuoteMeta(file) + `'\)\s*format\('` + format + `'\)`)
}

// EmbedFonts replaces relative font URLs in css with data URIs.
func EmbedFonts(css string, f Fonts) string {
	for _, ref := range fontRefs {
		repl := fmt.Sprintf("url(data:%s;base64,%s) format('%s')", ref.mime, ref.data(f), ref.format)
		css = ref.re.ReplaceAllLiteralString(css, repl)
	}
	return css
}

func readBase64(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading asset %s: %w", filepath.Base(path), err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Status reports which assets are present on disk.
type Status struct {
	StylesPath      string          `json:"cssPath"`
	StylesExist     bool            `json:"cssExists"`
	AssetsDir       string          `json:"assetsPath"`
	AssetsDirExists bool            `json:"assetsExists"`
	OrangeSVGExists bool            `json:"orangeSvgExists"`
	BlueSVGExists   bool            `json:"blueSvgExists"`
	FontsDirExists  bool            `json:"fontsDir"`
	Fonts           map[string]bool `json:"fonts"`
}

// Inspect stats every asset without reading it.
func (l *Loader) Inspect() Status {
	fontsDir := filepath.Join(l.Dir, FontsDir)
	s := Status{
		StylesPath:      l.StylesPath,
		StylesExist:     exists(l.StylesPath),
		AssetsDir:       l.Dir,
		AssetsDirExists: exists(l.Dir),
		OrangeSVGExists: exists(filepath.Join(l.Dir, OrangeSVG)),
		BlueSVGExists:   exists(filepath.Join(l.Dir, BlueSVG)),
		FontsDirExists:  exists(fontsDir),
		Fonts:           make(map[string]bool),
	}
	for _, name := range []string{FontRegular, FontMedium, FontPermanentMarker} {
		s.Fonts[name] = exists(filepath.Join(fontsDir, name))
	}
	return s
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
