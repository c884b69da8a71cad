// Package events turns channel events into typed notifications and routes
// them to registered handler sets.
package events

// Kind identifies a notification.
type Kind int

const (
	KindUnknown Kind = iota
	FileCreatedKind
	FileRenamedKind
	FileRemovedKind
	FileMovedKind
	ContentChangedKind
	SpellCheckLanguageChangedKind
	CompilerChangedKind
	RootDocChangedKind
	DisconnectedKind
	ConnectionAcceptedKind
	ClientUpdatedKind
	ClientDisconnectedKind
	ChatMessageReceivedKind

	// Lifecycle kinds used by the join flow.
	ConnectedKind
	ConnectFailedKind
	ConnectionRejectedKind
	ForceDisconnectedKind
	JoinProjectResponseKind
)

var kindNames = map[Kind]string{
	KindUnknown:                   "unknown",
	FileCreatedKind:               "file-created",
	FileRenamedKind:               "file-renamed",
	FileRemovedKind:               "file-removed",
	FileMovedKind:                 "file-moved",
	ContentChangedKind:            "content-changed",
	SpellCheckLanguageChangedKind: "spell-check-language-changed",
	CompilerChangedKind:           "compiler-changed",
	RootDocChangedKind:            "root-doc-changed",
	DisconnectedKind:              "disconnected",
	ConnectionAcceptedKind:        "connection-accepted",
	ClientUpdatedKind:             "client-updated",
	ClientDisconnectedKind:        "client-disconnected",
	ChatMessageReceivedKind:       "chat-message-received",
	ConnectedKind:                 "connected",
	ConnectFailedKind:             "connect-failed",
	ConnectionRejectedKind:        "connection-rejected",
	ForceDisconnectedKind:         "force-disconnected",
	JoinProjectResponseKind:       "join-project-response",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Kinds lists every known kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames)-1)
	for k := FileCreatedKind; k <= JoinProjectResponseKind; k++ {
		out = append(out, k)
	}
	return out
}
