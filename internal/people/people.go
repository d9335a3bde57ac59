// Package people resolves recognized labels to the person details
// shown in notifications (position, company).
package people

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Person describes a single directory entry.
type Person struct {
	Name     string `yaml:"name"`
	Position string `yaml:"position,omitempty"`
	Company  string `yaml:"company,omitempty"`
}

type directoryFile struct {
	People []Person `yaml:"people"`
}

// Directory maps normalized person names to their entries.
type Directory struct {
	byName map[string]Person
}

// NewDirectory builds a directory from the given entries. Later
// entries override earlier ones with the same normalized name.
func NewDirectory(persons ...Person) *Directory {
	d := &Directory{byName: make(map[string]Person, len(persons))}
	for _, p := range persons {
		d.byName[normalizeName(p.Name)] = p
	}
	return d
}

// Load reads a YAML people file. A missing file yields an empty
// directory so the feature stays optional.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewDirectory(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read people file %s: %w", path, err)
	}

	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("could not parse people file %s: %w", path, err)
	}
	for i, p := range file.People {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("people file %s: entry %d has no name", path, i)
		}
	}

	return NewDirectory(file.People...), nil
}

// Lookup finds a person by name, ignoring case, dashes and
// diacritics ("jana-novakova" matches "Jana Nováková").
func (d *Directory) Lookup(name string) (Person, bool) {
	p, ok := d.byName[normalizeName(name)]
	return p, ok
}

// Len reports the number of entries.
func (d *Directory) Len() int {
	return len(d.byName)
}

func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

func normalizeName(name string) string {
	name = removeDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return name
}
