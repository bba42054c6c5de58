package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"
	lkp "github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/progrium/tapedeck/tape"
)

type Options struct {
	URL      string
	Key      string
	Secret   string
	Room     string
	Identity string
	Topic    string
}

// Room publishes replayed records as data packets in a LiveKit room and
// runs slash-commands that participants send in chat.
type Room struct {
	room  *lksdk.Room
	topic string
	log   *slog.Logger
}

// Connect joins the room. onCommand, if not nil, receives chat messages
// that start with "/".
func Connect(opts Options, onCommand func(line string) error) (*Room, error) {
	r := &Room{
		topic: opts.Topic,
		log:   slog.Default().With("component", "broadcast", "room", opts.Room),
	}
	cb := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				user, ok := data.ToProto().Value.(*lkp.DataPacket_User)
				if !ok || onCommand == nil {
					return
				}
				line, ok := chatCommand(user.User.Payload)
				if !ok {
					return
				}
				r.log.Info("chat command", "from", params.SenderIdentity, "command", line)
				if err := onCommand(line); err != nil {
					r.log.Warn("chat command failed", "command", line, "err", err)
				}
			},
		},
	}
	room, err := lksdk.ConnectToRoom(opts.URL, lksdk.ConnectInfo{
		APIKey:              opts.Key,
		APISecret:           opts.Secret,
		RoomName:            opts.Room,
		ParticipantIdentity: opts.Identity,
	}, cb)
	if err != nil {
		return nil, fmt.Errorf("livekit: %w", err)
	}
	r.room = room
	r.log.Info("joined", "url", opts.URL, "identity", opts.Identity)
	return r, nil
}

// Publish sends rec, binary encoded, to every participant. Packets are
// lossy; a late record is worth less than the next one.
func (r *Room) Publish(rec *tape.Record) error {
	b, err := rec.MarshalBinary()
	if err != nil {
		return err
	}
	return r.room.LocalParticipant.PublishDataPacket(
		lksdk.UserData(b),
		lksdk.WithDataPublishTopic(r.topic),
		lksdk.WithDataPublishReliable(false),
	)
}

func (r *Room) Close() {
	r.room.Disconnect()
	r.log.Info("left")
}

// chatCommand extracts a slash-command from a chat payload of the form
// {"message": "/pause"}.
func chatCommand(payload []byte) (string, bool) {
	var m struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &m); err != nil {
		return "", false
	}
	line := strings.TrimSpace(m.Message)
	if !strings.HasPrefix(line, "/") {
		return "", false
	}
	return line, true
}

// ViewerToken mints a join token for identity that can watch and chat but
// not publish media.
func ViewerToken(opts Options, identity string, validFor time.Duration) (string, error) {
	canPublish := false
	at := auth.NewAccessToken(opts.Key, opts.Secret)
	grant := &auth.VideoGrant{
		RoomJoin:   true,
		Room:       opts.Room,
		CanPublish: &canPublish,
	}
	at.AddGrant(grant).
		SetIdentity(identity).
		SetValidFor(validFor)
	return at.ToJWT()
}
