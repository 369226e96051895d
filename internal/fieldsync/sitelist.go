package fieldsync

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LoadSiteList reads a curated list of field site codes from a YAML file of
// the form:
//
//	sites:
//	  - HARV
//	  - BART
//
// Codes are upper-cased and must be unique.
func LoadSiteList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fieldsync: read site list %s", path)
	}

	var list struct {
		Sites []string `yaml:"sites"`
	}
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, eris.Wrapf(err, "fieldsync: parse site list %s", path)
	}

	seen := make(map[string]bool, len(list.Sites))
	codes := make([]string, 0, len(list.Sites))
	for i, s := range list.Sites {
		code := strings.ToUpper(strings.TrimSpace(s))
		if code == "" {
			return nil, eris.Errorf("fieldsync: site list %s: entry %d is empty", path, i+1)
		}
		if seen[code] {
			return nil, eris.Errorf("fieldsync: site list %s: duplicate site %s", path, code)
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes, nil
}
