package pkg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmailCodeHTML(t *testing.T) {
	body := EmailCodeHTML("register", "123456", 5*time.Minute)
	assert.Contains(t, body, "123456")
	assert.Contains(t, body, "5 minutes")
}

func TestNotificationHTML_EscapesAndLinksUnsubscribe(t *testing.T) {
	body := NotificationHTML("https://clubs.example.com", "Asha", "<b>Hack Night</b>", "Starts at 6", "/events/7", "tok-1", "event_published")

	assert.NotContains(t, body, "<b>Hack Night</b>")
	assert.Contains(t, body, "&lt;b&gt;Hack Night&lt;/b&gt;")
	assert.Contains(t, body, "https://clubs.example.com/events/7")
	assert.True(t, strings.Contains(body, "unsubscribe?token=tok-1&amp;type=event_published"))
}

func TestNotificationHTML_NoTokenNoUnsubscribe(t *testing.T) {
	body := NotificationHTML("https://x", "A", "T", "M", "", "", "system")
	assert.NotContains(t, body, "Unsubscribe")
}
