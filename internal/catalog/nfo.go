package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// nfoDocument is a minimal INI-style reader/writer for ".nfo" capture
// descriptors. spec.md §6 defines exactly one section per file, named by
// the decimal capture id, with flat `key = value` lines underneath it:
//
//	[<id>]
//	name = <string>
//	date = YYYY-MM-DD HH:MM:SS
//	audio = <basename>.mjr
//	video = <basename>.mjr
//
// No third-party INI library showed up anywhere in the retrieval pack, so
// this is a deliberate, narrow hand-rolled parser rather than a dependency
// substitute for one.
type nfoDocument map[string]map[string]string

// section returns the document's one capture-id section. A well-formed
// `.nfo` file has exactly one; a file with zero or more than one is
// malformed and ok is false.
func (d nfoDocument) section() (id string, fields map[string]string, ok bool) {
	if len(d) != 1 {
		return "", nil, false
	}
	for name, fields := range d {
		return name, fields, true
	}
	return "", nil, false
}

func parseNFO(r io.Reader) (nfoDocument, error) {
	doc := make(nfoDocument)
	section := ""
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(line[1 : len(line)-1])
			if _, ok := doc[section]; !ok {
				doc[section] = make(map[string]string)
			}
			continue
		}

		i := strings.IndexByte(line, '=')
		if i < 0 {
			continue
		}

		key := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		if _, ok := doc[section]; !ok {
			doc[section] = make(map[string]string)
		}
		doc[section][key] = val
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

func readNFOFile(path string) (nfoDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseNFO(f)
}

// writeNFOFile persists e in the single-section, flat-key layout spec.md
// §6 documents. Codec is never stored here: a reader determines it by
// opening the referenced MJR file's info header (loadDescriptor).
func writeNFOFile(path string, e *Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)

	fmt.Fprintf(w, "[%s]\r\n", e.ID)
	fmt.Fprintf(w, "name = %s\r\n", e.Name)
	fmt.Fprintf(w, "date = %s\r\n", e.Date.Format("2006-01-02 15:04:05"))
	if e.AudioPath != "" {
		fmt.Fprintf(w, "audio = %s\r\n", filepath.Base(e.AudioPath))
	}
	if e.VideoPath != "" {
		fmt.Fprintf(w, "video = %s\r\n", filepath.Base(e.VideoPath))
	}

	return w.Flush()
}
