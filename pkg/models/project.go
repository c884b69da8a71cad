package models

// Member is a project collaborator as reported by the server.
type Member struct {
	ID         string `json:"_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name,omitempty"`
	Email      string `json:"email"`
	Privileges string `json:"privileges,omitempty"`
	SignUpDate string `json:"signUpDate,omitempty"`
}

type DeletedDoc struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	DeletedAt string `json:"deletedAt,omitempty"`
}

type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Compiler struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ProjectSettings is fetched from the RemoteAPI once per join.
type ProjectSettings struct {
	LearnedWords []string   `json:"learnedWords"`
	Languages    []Language `json:"languages"`
	Compilers    []Compiler `json:"compilers"`
}

// ProjectSummary is one entry of the user's project list.
type ProjectSummary struct {
	ID          string `json:"_id"`
	Name        string `json:"name"`
	AccessLevel string `json:"accessLevel,omitempty"`
	Archived    bool   `json:"archived,omitempty"`
	Trashed     bool   `json:"trashed,omitempty"`
}

// Project is the root record of the mirrored tree.
//
// RootDocID, Compiler and SpellCheckLanguage change only through server
// notifications.
type Project struct {
	ID                 string           `json:"_id"`
	Name               string           `json:"name"`
	RootDocID          string           `json:"rootDoc_id,omitempty"`
	RootFolder         []*Folder        `json:"rootFolder"`
	PublicAccessLevel  string           `json:"publicAccesLevel,omitempty"`
	Compiler           string           `json:"compiler,omitempty"`
	SpellCheckLanguage string           `json:"spellCheckLanguage,omitempty"`
	DeletedDocs        []DeletedDoc     `json:"deletedDocs,omitempty"`
	Members            []Member         `json:"members,omitempty"`
	Invites            []Member         `json:"invites,omitempty"`
	Owner              *Member          `json:"owner,omitempty"`
	Features           map[string]any   `json:"features,omitempty"`
	Settings           *ProjectSettings `json:"settings,omitempty"`
}

// Root returns the project's root folder, or nil if the snapshot has none.
func (p *Project) Root() *Folder {
	if p == nil || len(p.RootFolder) == 0 {
		return nil
	}
	return p.RootFolder[0]
}

// Clone returns a deep copy of the project, safe to hold while the
// original keeps receiving notifications.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	c.RootFolder = make([]*Folder, len(p.RootFolder))
	for i, f := range p.RootFolder {
		c.RootFolder[i] = f.Clone()
	}
	c.DeletedDocs = append([]DeletedDoc(nil), p.DeletedDocs...)
	c.Members = append([]Member(nil), p.Members...)
	c.Invites = append([]Member(nil), p.Invites...)
	if p.Owner != nil {
		owner := *p.Owner
		c.Owner = &owner
	}
	if p.Features != nil {
		c.Features = make(map[string]any, len(p.Features))
		for k, v := range p.Features {
			c.Features[k] = v
		}
	}
	if p.Settings != nil {
		s := *p.Settings
		s.LearnedWords = append([]string(nil), p.Settings.LearnedWords...)
		s.Languages = append([]Language(nil), p.Settings.Languages...)
		s.Compilers = append([]Compiler(nil), p.Settings.Compilers...)
		c.Settings = &s
	}
	return &c
}
