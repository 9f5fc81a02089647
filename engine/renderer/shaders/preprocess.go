package shaders

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spaghettifunk/lumo/engine/core"
)

const maxIncludeDepth = 16

// Preprocessor injects #define lines and a shared header, and resolves
// #include "file" directives. Everything else is left to the compiler.
type Preprocessor struct {
	IncludeDirs []string
	Defines     map[string]string
	// Header is inserted after the #version line, below the defines.
	Header string
}

// Process returns the expanded code and the absolute paths of every file it included.
func (p *Preprocessor) Process(name, code string) (string, []string, error) {
	var used []string
	seen := map[string]bool{}
	body, err := p.expand(name, code, seen, &used, 0)
	if err != nil {
		return "", nil, err
	}
	return p.injectDefines(body), used, nil
}

func (p *Preprocessor) injectDefines(code string) string {
	if len(p.Defines) == 0 && p.Header == "" {
		return code
	}
	keys := make([]string, 0, len(p.Defines))
	for k := range p.Defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var defs strings.Builder
	for _, k := range keys {
		if v := p.Defines[k]; v != "" {
			fmt.Fprintf(&defs, "#define %s %s\n", k, v)
		} else {
			fmt.Fprintf(&defs, "#define %s\n", k)
		}
	}
	if p.Header != "" {
		defs.WriteString(p.Header)
		if !strings.HasSuffix(p.Header, "\n") {
			defs.WriteByte('\n')
		}
	}

	// #version has to stay the first directive.
	lines := strings.SplitAfter(code, "\n")
	for i, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "#version") {
			if !strings.HasSuffix(l, "\n") {
				lines[i] = l + "\n"
			}
			return strings.Join(lines[:i+1], "") + defs.String() + strings.Join(lines[i+1:], "")
		}
	}
	return defs.String() + code
}

func (p *Preprocessor) expand(name, code string, seen map[string]bool, used *[]string, depth int) (string, error) {
	if depth > maxIncludeDepth {
		return "", core.Newf("%s: includes nested deeper than %d", name, maxIncludeDepth)
	}
	var out strings.Builder
	sc := bufio.NewScanner(strings.NewReader(code))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		file, ok := parseInclude(text)
		if !ok {
			out.WriteString(text)
			out.WriteByte('\n')
			continue
		}
		path, err := p.resolve(file)
		if err != nil {
			return "", core.Newf("%s:%d: %s", name, line, err)
		}
		if seen[path] {
			// already pulled in once, acts like a pragma once
			continue
		}
		seen[path] = true
		*used = append(*used, path)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", core.Wrapf(err, "%s:%d: include %q", name, line, file)
		}
		inner, err := p.expand(path, string(data), seen, used, depth+1)
		if err != nil {
			return "", err
		}
		out.WriteString(inner)
	}
	if err := sc.Err(); err != nil {
		return "", core.Wrapf(err, "%s: scanning source", name)
	}
	return out.String(), nil
}

func (p *Preprocessor) resolve(file string) (string, error) {
	if filepath.IsAbs(file) {
		if _, err := os.Stat(file); err == nil {
			return file, nil
		}
	}
	for _, dir := range p.IncludeDirs {
		candidate := filepath.Join(dir, file)
		if _, err := os.Stat(candidate); err == nil {
			return filepath.Abs(candidate)
		}
	}
	return "", fmt.Errorf("include %q not found", file)
}

func parseInclude(line string) (string, bool) {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "#include") {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(t, "#include"))
	if len(rest) < 2 {
		return "", false
	}
	switch {
	case rest[0] == '"':
		if end := strings.IndexByte(rest[1:], '"'); end >= 0 {
			return rest[1 : end+1], true
		}
	case rest[0] == '<':
		if end := strings.IndexByte(rest[1:], '>'); end >= 0 {
			return rest[1 : end+1], true
		}
	}
	return "", false
}
