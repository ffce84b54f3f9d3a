package meeting

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// MockAdapter synthesizes links derived from the appointment id, so the same
// request always yields the same meeting. It never fails.
type MockAdapter struct{}

func NewMockAdapter() MockAdapter {
	return MockAdapter{}
}

func (MockAdapter) Provision(_ context.Context, req Request) (Details, error) {
	sum := sha256.Sum256([]byte(string(req.Platform) + ":" + req.AppointmentID))
	digits := binary.BigEndian.Uint64(sum[:8])%9_000_000_000 + 1_000_000_000
	token := hex.EncodeToString(sum[8:16])
	password := hex.EncodeToString(sum[16:19])

	d := Details{
		Platform:   req.Platform,
		HostEmail:  req.HostEmail,
		GuestEmail: req.GuestEmail,
	}
	switch req.Platform {
	case Zoom:
		d.MeetingID = fmt.Sprintf("%d", digits)
		d.Password = password
		d.URL = fmt.Sprintf("https://zoom.us/j/%s?pwd=%s", d.MeetingID, password)
	case GoogleMeet:
		code := meetCode(sum[8:18])
		d.MeetingID = code
		d.URL = "https://meet.google.com/" + code
	case MicrosoftTeams:
		d.MeetingID = token
		d.URL = "https://teams.microsoft.com/l/meetup-join/" + token
	default:
		d.Platform = Generic
		d.MeetingID = token
		d.URL = "https://meet.jit.si/wellbook-" + token
	}
	return d, nil
}

// Cancel is a no-op: mock links are never registered anywhere.
func (MockAdapter) Cancel(context.Context, Details) error {
	return nil
}

// meetCode renders ten bytes as a Meet style xxx-xxxx-xxx code.
func meetCode(b []byte) string {
	letters := make([]byte, len(b))
	for i, v := range b {
		letters[i] = 'a' + v%26
	}
	return string(letters[:3]) + "-" + string(letters[3:7]) + "-" + string(letters[7:10])
}
