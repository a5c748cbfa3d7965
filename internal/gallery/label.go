package gallery

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Identity is one enrolled person, stored as a folder "<id>_<name>".
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Folder string `json:"folder"`
}

// Label is the display form "<id> - <name>".
func (i Identity) Label() string {
	if i.Name == "" {
		return i.ID
	}
	return i.ID + " - " + i.Name
}

// ParseFolder splits a folder name at the first underscore. Folders
// without an underscore use the whole name as id.
func ParseFolder(folder string) Identity {
	folder = norm.NFC.String(folder)
	id, name, found := strings.Cut(folder, "_")
	if !found {
		return Identity{ID: folder, Folder: folder}
	}
	return Identity{ID: id, Name: strings.ReplaceAll(name, "_", " "), Folder: folder}
}

// FolderName builds the folder name for an identity. Path separators and
// surrounding whitespace are dropped from the name.
func FolderName(id, name string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == 0:
			return -1
		case unicode.IsSpace(r):
			return '_'
		}
		return r
	}, strings.TrimSpace(norm.NFC.String(name)))
	if clean == "" {
		return id
	}
	return id + "_" + clean
}

// RemoveDiacritics strips combining marks ("Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeName folds a name for lookups: no diacritics, lower case,
// underscores and dashes as spaces.
func NormalizeName(name string) string {
	name = strings.ToLower(RemoveDiacritics(name))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}
