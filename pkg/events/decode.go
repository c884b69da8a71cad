package events

import (
	"fmt"
	"sort"

	"github.com/olsync/olsync/pkg/channel"
	"github.com/olsync/olsync/pkg/constants"
	"github.com/olsync/olsync/pkg/models"
)

type decodeFunc func(args *channel.Args) (Notification, error)

type eventSpec struct {
	kind   Kind
	decode decodeFunc
}

// events maps every canonical server event name to its kind and decoder.
var events = map[string]eventSpec{
	"reciveNewDoc":    {FileCreatedKind, decodeNewDoc},
	"reciveNewFile":   {FileCreatedKind, decodeNewFile},
	"reciveNewFolder": {FileCreatedKind, decodeNewFolder},

	"reciveEntityRename": {FileRenamedKind, decodeRename},
	"removeEntity":       {FileRemovedKind, decodeRemove},
	"reciveEntityMove":   {FileMovedKind, decodeMove},
	"otUpdateApplied":    {ContentChangedKind, decodeUpdate},

	"spellCheckLanguageUpdated": {SpellCheckLanguageChangedKind, decodeString(func(s string) Notification {
		return &SpellCheckLanguageChanged{Language: s}
	})},
	"compilerUpdated": {CompilerChangedKind, decodeString(func(s string) Notification {
		return &CompilerChanged{Compiler: s}
	})},
	"rootDocUpdated": {RootDocChangedKind, decodeString(func(s string) Notification {
		return &RootDocChanged{RootDocID: s}
	})},

	channel.EventDisconnect: {DisconnectedKind, func(args *channel.Args) (Notification, error) {
		return &Disconnected{Reason: optionalString(args, 0)}, nil
	}},
	"connectionAccepted": {ConnectionAcceptedKind, func(args *channel.Args) (Notification, error) {
		return &ConnectionAccepted{PublicID: optionalString(args, 1)}, nil
	}},
	"clientTracking.clientUpdated": {ClientUpdatedKind, func(args *channel.Args) (Notification, error) {
		n := &ClientUpdated{}
		if err := args.Decode(0, &n.Update); err != nil {
			return nil, err
		}
		return n, nil
	}},
	"clientTracking.clientDisconnected": {ClientDisconnectedKind, decodeString(func(s string) Notification {
		return &ClientDisconnected{ClientID: s}
	})},
	"new-chat-message": {ChatMessageReceivedKind, func(args *channel.Args) (Notification, error) {
		n := &ChatMessageReceived{}
		if err := args.Decode(0, &n.Message); err != nil {
			return nil, err
		}
		return n, nil
	}},

	channel.EventConnect: {ConnectedKind, func(*channel.Args) (Notification, error) {
		return &Connected{}, nil
	}},
	channel.EventConnectFailed: {ConnectFailedKind, func(args *channel.Args) (Notification, error) {
		return &ConnectFailed{Reason: optionalString(args, 0)}, nil
	}},
	"connectionRejected": {ConnectionRejectedKind, func(args *channel.Args) (Notification, error) {
		return &ConnectionRejected{Message: messageOf(args, 0)}, nil
	}},
	"forceDisconnect": {ForceDisconnectedKind, func(args *channel.Args) (Notification, error) {
		n := &ForceDisconnected{Message: messageOf(args, 0)}
		if args.Len() > 1 {
			_ = args.Decode(1, &n.Delay)
		}
		return n, nil
	}},
	"joinProjectResponse": {JoinProjectResponseKind, func(args *channel.Args) (Notification, error) {
		n := &JoinProjectResponse{}
		if err := args.Decode(0, n); err != nil {
			return nil, err
		}
		if n.Project == nil {
			return nil, fmt.Errorf("%w: joinProjectResponse without project", constants.ErrMalformedPayload)
		}
		return n, nil
	}},
}

// aliases maps legacy spellings to canonical event names.
var aliases = map[string]string{
	"recieveNewDoc":       "reciveNewDoc",
	"recieveNewFile":      "reciveNewFile",
	"recieveNewFolder":    "reciveNewFolder",
	"recieveEntityRename": "reciveEntityRename",
	"recieveEntityMove":   "reciveEntityMove",
}

// EventNames returns the canonical event names of kind followed by
// their legacy aliases, sorted within each group.
func EventNames(kind Kind) []string {
	var canonical, legacy []string
	for name, ev := range events {
		if ev.kind == kind {
			canonical = append(canonical, name)
		}
	}
	for alias, name := range aliases {
		if events[name].kind == kind {
			legacy = append(legacy, alias)
		}
	}
	sort.Strings(canonical)
	sort.Strings(legacy)
	return append(canonical, legacy...)
}

// Decode converts the arguments of event into a typed notification.
// Unknown events and malformed arguments yield ErrMalformedPayload.
func Decode(event string, args *channel.Args) (Notification, error) {
	if name, ok := aliases[event]; ok {
		event = name
	}
	ev, ok := events[event]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event %q", constants.ErrMalformedPayload, event)
	}
	n, err := ev.decode(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", event, err)
	}
	return n, nil
}

func decodeNewDoc(args *channel.Args) (Notification, error) {
	n := &FileCreated{}
	doc := &models.Document{}
	if err := args.DecodeAll(&n.ParentID, doc); err != nil {
		return nil, err
	}
	n.Entity = doc
	n.UserID = optionalString(args, 3)
	return n, requireIDs(n.ParentID, doc.ID)
}

func decodeNewFile(args *channel.Args) (Notification, error) {
	n := &FileCreated{}
	file := &models.FileRef{}
	if err := args.DecodeAll(&n.ParentID, file); err != nil {
		return nil, err
	}
	if file.LinkedFileData == nil && args.Len() > 3 {
		if data, ok := args.Value(3).(map[string]any); ok {
			file.LinkedFileData = data
		}
	}
	n.Entity = file
	n.UserID = optionalString(args, 4)
	return n, requireIDs(n.ParentID, file.ID)
}

func decodeNewFolder(args *channel.Args) (Notification, error) {
	n := &FileCreated{}
	folder := &models.Folder{}
	if err := args.DecodeAll(&n.ParentID, folder); err != nil {
		return nil, err
	}
	n.Entity = folder
	n.UserID = optionalString(args, 2)
	return n, requireIDs(n.ParentID, folder.ID)
}

func decodeRename(args *channel.Args) (Notification, error) {
	n := &FileRenamed{}
	if err := args.DecodeAll(&n.EntityID, &n.NewName); err != nil {
		return nil, err
	}
	if n.NewName == "" {
		return nil, fmt.Errorf("%w: empty name", constants.ErrMalformedPayload)
	}
	return n, requireIDs(n.EntityID)
}

func decodeRemove(args *channel.Args) (Notification, error) {
	n := &FileRemoved{}
	if err := args.Decode(0, &n.EntityID); err != nil {
		return nil, err
	}
	return n, requireIDs(n.EntityID)
}

func decodeMove(args *channel.Args) (Notification, error) {
	n := &FileMoved{}
	if err := args.DecodeAll(&n.EntityID, &n.NewParentID); err != nil {
		return nil, err
	}
	return n, requireIDs(n.EntityID, n.NewParentID)
}

func decodeUpdate(args *channel.Args) (Notification, error) {
	n := &ContentChanged{}
	if err := args.Decode(0, &n.Update); err != nil {
		return nil, err
	}
	return n, requireIDs(n.Update.Doc)
}

func decodeString(build func(string) Notification) decodeFunc {
	return func(args *channel.Args) (Notification, error) {
		var s string
		if err := args.Decode(0, &s); err != nil {
			return nil, err
		}
		return build(s), nil
	}
}

func requireIDs(ids ...string) error {
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: missing id", constants.ErrMalformedPayload)
		}
	}
	return nil
}

func optionalString(args *channel.Args, i int) string {
	s, _ := args.Value(i).(string)
	return s
}

// messageOf accepts both a bare string and a {message} object.
func messageOf(args *channel.Args, i int) string {
	switch v := args.Value(i).(type) {
	case string:
		return v
	case map[string]any:
		s, _ := v["message"].(string)
		return s
	}
	return ""
}
