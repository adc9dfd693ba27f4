package schedule

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domain "onchainsummer/internal/domain/schedule"
)

//go:embed default_schedule.yaml
var defaultSchedule []byte

// Document is the on-disk shape of a schedule file.
type Document struct {
	Timezone string               `yaml:"timezone"`
	Partners map[string]yamlEntry `yaml:"partners"`
}

type yamlEntry struct {
	Slug          string     `yaml:"slug"`
	Name          string     `yaml:"name"`
	URL           string     `yaml:"url"`
	Description   string     `yaml:"description"`
	BrandColor    string     `yaml:"brandColor"`
	Icon          string     `yaml:"icon"`
	Twitter       string     `yaml:"twitter"`
	ContentDigest string     `yaml:"contentDigest"`
	Drops         []yamlDrop `yaml:"drops"`
}

type yamlDrop struct {
	Address   string `yaml:"address"`
	Name      string `yaml:"name"`
	Image     string `yaml:"image"`
	Creator   string `yaml:"creator"`
	Type      string `yaml:"type"`
	Price     string `yaml:"price"`
	StartDate string `yaml:"startDate"`
	EndDate   string `yaml:"endDate"`
}

// Load reads the schedule at path, or the embedded default when path is empty.
// PRE: none
// POST: Returns a validated, immutable Schedule or the first load error
func Load(path string) (*domain.Schedule, error) {
	if path == "" {
		return Parse(defaultSchedule)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule file: %w", err)
	}
	sched, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sched, nil
}

// Parse decodes a YAML schedule document and builds the Schedule.
func Parse(data []byte) (*domain.Schedule, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schedule: %w", err)
	}

	tz := strings.TrimSpace(doc.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown schedule timezone %q: %w", tz, err)
	}

	entries := make([]domain.Entry, 0, len(doc.Partners))
	for rawDate, p := range doc.Partners {
		date, err := domain.ParseDateKey(rawDate)
		if err != nil {
			return nil, err
		}
		entry := domain.Entry{
			Date:          date,
			Slug:          strings.TrimSpace(p.Slug),
			Name:          p.Name,
			URL:           p.URL,
			Description:   p.Description,
			BrandColor:    p.BrandColor,
			Icon:          p.Icon,
			Twitter:       normalizeHandle(p.Twitter),
			ContentDigest: p.ContentDigest,
		}
		for _, d := range p.Drops {
			drop, err := d.toDomain()
			if err != nil {
				return nil, fmt.Errorf("partner %s: %w", entry.Slug, err)
			}
			entry.Drops = append(entry.Drops, drop)
		}
		entries = append(entries, entry)
	}
	return domain.New(loc, entries)
}

func (d yamlDrop) toDomain() (domain.Drop, error) {
	start, err := parseInstant(d.StartDate)
	if err != nil {
		return domain.Drop{}, fmt.Errorf("drop %s startDate: %w", d.Address, err)
	}
	end, err := parseInstant(d.EndDate)
	if err != nil {
		return domain.Drop{}, fmt.Errorf("drop %s endDate: %w", d.Address, err)
	}
	return domain.Drop{
		Address:   strings.TrimSpace(d.Address),
		Name:      d.Name,
		Image:     d.Image,
		Creator:   d.Creator,
		Type:      d.Type,
		Price:     d.Price,
		StartDate: start,
		EndDate:   end,
	}, nil
}

// normalizeHandle stores twitter handles without their leading "@".
func normalizeHandle(h string) string {
	return strings.TrimPrefix(strings.TrimSpace(h), "@")
}

// parseInstant converts a drop window bound to epoch milliseconds.
// Bare dates are midnight UTC; empty means unset.
func parseInstant(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if t, err := time.Parse(domain.DateLayout, s); err == nil {
		return t.UnixMilli(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("want YYYY-MM-DD or RFC3339, got %q", s)
	}
	return t.UnixMilli(), nil
}
