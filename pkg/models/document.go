package models

type Document struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	Version int    `json:"version,omitempty"`

	// RemoteCache is the last text known to match the server at Version.
	RemoteCache *string `json:"-"`
	// LocalCache is the text as edited locally.
	LocalCache *string `json:"-"`
	// Stale is set when an update could not be applied; the next read refetches.
	Stale bool `json:"-"`
}

func (d *Document) EntityID() string    { return d.ID }
func (d *Document) EntityName() string  { return d.Name }
func (d *Document) SetName(name string) { d.Name = name }
func (d *Document) Kind() EntityKind    { return KindDoc }

// Cached reports whether the document holds content that can be served
// without asking the server.
func (d *Document) Cached() bool {
	return !d.Stale && (d.RemoteCache != nil || d.LocalCache != nil)
}

// Content returns the locally edited text if any, else the remote text.
func (d *Document) Content() string {
	if d.LocalCache != nil {
		return *d.LocalCache
	}
	if d.RemoteCache != nil {
		return *d.RemoteCache
	}
	return ""
}

// SetContent populates both caches with authoritative text at version.
func (d *Document) SetContent(text string, version int) {
	remote, local := text, text
	d.RemoteCache = &remote
	d.LocalCache = &local
	d.Version = version
	d.Stale = false
}

// Invalidate drops both caches.
func (d *Document) Invalidate() {
	d.RemoteCache = nil
	d.LocalCache = nil
}

func (d *Document) Clone() *Document {
	c := *d
	if d.RemoteCache != nil {
		s := *d.RemoteCache
		c.RemoteCache = &s
	}
	if d.LocalCache != nil {
		s := *d.LocalCache
		c.LocalCache = &s
	}
	return &c
}

// FileRef is a binary attachment. Its content is never patched.
type FileRef struct {
	ID             string         `json:"_id"`
	Name           string         `json:"name"`
	LinkedFileData map[string]any `json:"linkedFileData,omitempty"`
	Created        string         `json:"created,omitempty"`
}

func (r *FileRef) EntityID() string    { return r.ID }
func (r *FileRef) EntityName() string  { return r.Name }
func (r *FileRef) SetName(name string) { r.Name = name }
func (r *FileRef) Kind() EntityKind    { return KindFile }

func (r *FileRef) Clone() *FileRef {
	c := *r
	if r.LinkedFileData != nil {
		c.LinkedFileData = make(map[string]any, len(r.LinkedFileData))
		for k, v := range r.LinkedFileData {
			c.LinkedFileData[k] = v
		}
	}
	return &c
}

// OutputFile is a compile artefact. It is regenerated on every compile.
type OutputFile struct {
	ID    string `json:"_id,omitempty"`
	Name  string `json:"name,omitempty"`
	Path  string `json:"path"`
	URL   string `json:"url"`
	Type  string `json:"type"`
	Build string `json:"build"`
}

func (o *OutputFile) EntityID() string    { return o.ID }
func (o *OutputFile) EntityName() string  { return o.Name }
func (o *OutputFile) SetName(name string) { o.Name = name }
func (o *OutputFile) Kind() EntityKind    { return KindOutput }

// NormalizeOutputs fills ID and Name from Path, which is all the compile
// response carries.
func NormalizeOutputs(outputs []*OutputFile) {
	for _, o := range outputs {
		if o.Name == "" {
			o.Name = o.Path
		}
		if o.ID == "" {
			o.ID = "output:" + o.Build + "/" + o.Path
		}
	}
}
