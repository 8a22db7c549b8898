package domain

// SteamGameInfo metadata of a Steam game, used as analysis context
type SteamGameInfo struct {
	AppID              int      `json:"app_id"`
	Name               string   `json:"name"`
	Type               string   `json:"type,omitempty"`
	Developers         []string `json:"developers,omitempty"`
	Publishers         []string `json:"publishers,omitempty"`
	ReleaseDate        string   `json:"release_date,omitempty"`
	Price              string   `json:"price,omitempty"`
	Genres             []string `json:"genres,omitempty"`
	Categories         []string `json:"categories,omitempty"`
	MetacriticScore    int      `json:"metacritic_score,omitempty"`
	HeaderImage        string   `json:"header_image,omitempty"`
	Website            string   `json:"website,omitempty"`
	ShortDescription   string   `json:"short_description,omitempty"`
	SupportedLanguages string   `json:"supported_languages,omitempty"`
}

// CheckContext everything one check request knows about its subject.
// It is owned by a single request and passed explicitly between components.
type CheckContext struct {
	URLs       []string
	GameName   string
	Text       string
	SteamInfo  *SteamGameInfo
	URLResults []*DomainProbeResult
}

// PrimaryDomain returns the domain of the first probed URL, or "".
func (c *CheckContext) PrimaryDomain() string {
	if c == nil {
		return ""
	}
	for _, r := range c.URLResults {
		if r != nil && r.Domain != "" {
			return r.Domain
		}
	}
	return ""
}
