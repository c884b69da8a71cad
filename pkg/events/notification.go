package events

import (
	"github.com/olsync/olsync/pkg/models"
	"github.com/olsync/olsync/pkg/ot"
)

// Notification is the closed set of payloads a handler can receive.
type Notification interface {
	Kind() Kind
}

// FileCreated announces a new folder, document or file under ParentID.
type FileCreated struct {
	ParentID string
	Entity   models.Entity
	UserID   string
}

type FileRenamed struct {
	EntityID string
	NewName  string
}

type FileRemoved struct {
	EntityID string
}

type FileMoved struct {
	EntityID    string
	NewParentID string
}

type ContentChanged struct {
	Update ot.Update
}

type SpellCheckLanguageChanged struct {
	Language string
}

type CompilerChanged struct {
	Compiler string
}

type RootDocChanged struct {
	RootDocID string
}

type Disconnected struct {
	Reason string
}

// ConnectionAccepted carries the public id the server gave this session.
type ConnectionAccepted struct {
	PublicID string
}

type ClientUpdated struct {
	Update models.ClientUpdate
}

type ClientDisconnected struct {
	ClientID string
}

type ChatMessageReceived struct {
	Message models.ChatMessage
}

type Connected struct{}

type ConnectFailed struct {
	Reason string
}

type ConnectionRejected struct {
	Message string
}

type ForceDisconnected struct {
	Message string
	// Delay is the number of seconds the server asks to wait before reconnecting.
	Delay int
}

// JoinProjectResponse is the server's answer to a join made through the
// connect query.
type JoinProjectResponse struct {
	PublicID         string          `json:"publicId"`
	Project          *models.Project `json:"project"`
	PermissionsLevel string          `json:"permissionsLevel"`
	ProtocolVersion  int             `json:"protocolVersion"`
}

func (*FileCreated) Kind() Kind               { return FileCreatedKind }
func (*FileRenamed) Kind() Kind               { return FileRenamedKind }
func (*FileRemoved) Kind() Kind               { return FileRemovedKind }
func (*FileMoved) Kind() Kind                 { return FileMovedKind }
func (*ContentChanged) Kind() Kind            { return ContentChangedKind }
func (*SpellCheckLanguageChanged) Kind() Kind { return SpellCheckLanguageChangedKind }
func (*CompilerChanged) Kind() Kind           { return CompilerChangedKind }
func (*RootDocChanged) Kind() Kind            { return RootDocChangedKind }
func (*Disconnected) Kind() Kind              { return DisconnectedKind }
func (*ConnectionAccepted) Kind() Kind        { return ConnectionAcceptedKind }
func (*ClientUpdated) Kind() Kind             { return ClientUpdatedKind }
func (*ClientDisconnected) Kind() Kind        { return ClientDisconnectedKind }
func (*ChatMessageReceived) Kind() Kind       { return ChatMessageReceivedKind }
func (*Connected) Kind() Kind                 { return ConnectedKind }
func (*ConnectFailed) Kind() Kind             { return ConnectFailedKind }
func (*ConnectionRejected) Kind() Kind        { return ConnectionRejectedKind }
func (*ForceDisconnected) Kind() Kind         { return ForceDisconnectedKind }
func (*JoinProjectResponse) Kind() Kind       { return JoinProjectResponseKind }
