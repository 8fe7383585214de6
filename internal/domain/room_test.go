package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"coloring-session/internal/domain"
)

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "ABC234", domain.NormalizeCode("abc234"))
	assert.Equal(t, "ABC234", domain.NormalizeCode("  AbC234\n"))
	assert.Equal(t, "", domain.NormalizeCode("   "))
}

// 房间码字母表不应包含肉眼易混的字符
func TestCodeAlphabet_NoAmbiguousCharacters(t *testing.T) {
	for _, c := range "01OIl" {
		assert.False(t, strings.ContainsRune(domain.CodeAlphabet, c), "字母表不应包含 %q", c)
	}
}

func TestRoomClosed(t *testing.T) {
	now := time.Now()
	room := domain.Room{State: domain.RoomActive}
	assert.False(t, room.Closed())

	room.State = domain.RoomClosed
	room.ClosedAt = &now
	assert.True(t, room.Closed())
}
