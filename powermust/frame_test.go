package powermust

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameReader_ACK(t *testing.T) {
	var f FrameReader
	tr := &fakeTransport{}
	tr.feed("ACK\r")

	assert.Equal(t, FrameComplete, f.ReadFrom(tr))
	assert.Equal(t, "ACK", f.String())
	assert.True(t, f.Complete())
}

func TestFrameReader_PartialAcrossReads(t *testing.T) {
	var f FrameReader
	tr := &fakeTransport{}

	tr.feed("(230.0 2")
	assert.Equal(t, FramePending, f.ReadFrom(tr))
	tr.feed("30.0\r")
	assert.Equal(t, FrameComplete, f.ReadFrom(tr))
	assert.Equal(t, "(230.0 230.0", f.String())
}

func TestFrameReader_DrainsTrailingBytes(t *testing.T) {
	var f FrameReader
	tr := &fakeTransport{}
	tr.feed("NAK\rgarbage")

	assert.Equal(t, FrameComplete, f.ReadFrom(tr))
	assert.Equal(t, "NAK", f.String())
	assert.Zero(t, tr.Available())
}

func TestFrameReader_Overflow(t *testing.T) {
	var f FrameReader
	tr := &fakeTransport{}
	tr.feed(strings.Repeat("x", ReadBufferLength+10))

	assert.Equal(t, FrameOverflow, f.ReadFrom(tr))
	assert.Zero(t, f.Len())
	assert.Empty(t, f.Bytes())
	assert.Zero(t, tr.Available())
}

func TestFrameReader_ExactlyFull(t *testing.T) {
	var f FrameReader
	tr := &fakeTransport{}
	tr.feed(strings.Repeat("x", ReadBufferLength) + "\r")

	assert.Equal(t, FrameComplete, f.ReadFrom(tr))
	assert.Equal(t, ReadBufferLength, f.Len())
}

func TestFrameReader_Reset(t *testing.T) {
	var f FrameReader
	f.Feed('A')
	f.Feed('\r')
	f.Reset()
	assert.Zero(t, f.Len())
	assert.False(t, f.Complete())
}
