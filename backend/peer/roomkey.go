package peer

import (
	"crypto/rand"
	"errors"
	"math/big"
	"net/url"
	"strings"
)

const roomQueryParam = "room"

var ErrBadURL = errors.New("bad room url")

var (
	adjectives = []string{
		"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
		"golden", "silver", "crimson", "emerald", "purple", "bright", "gentle", "brave", "calm", "swift",
	}
	animals = []string{
		"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
		"penguin", "flamingo", "pelican", "sparrow", "robin", "toucan", "parrot", "dolphin", "whale", "narwhal",
	}
	things = []string{
		"sunbeam", "stardust", "pepper", "muffin", "bubble", "sprout", "glimmer", "echo", "marble", "maple",
		"cocoa", "hazel", "breeze", "meadow", "willow", "ember", "lantern", "pebble", "comet", "nebula",
	}
)

// GenerateRoomKey returns a random readable key like "cozy-otter-comet".
func GenerateRoomKey() string {
	return strings.Join([]string{
		pick(adjectives),
		pick(animals),
		pick(things),
	}, "-")
}

func pick(words []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return words[n.Int64()]
}

// RoomKeyFromURL extracts room key from "room" query parameter or from fragment.
// If url carries no key, a new one is generated and url is rewritten
// to contain it in fragment, so it can be shared.
func RoomKeyFromURL(raw string) (key string, shareURL string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", errors.Join(ErrBadURL, err)
	}
	if key = u.Query().Get(roomQueryParam); key != "" {
		return key, raw, nil
	}
	if key = u.Fragment; key != "" {
		return key, raw, nil
	}
	key = GenerateRoomKey()
	u.Fragment = key
	return key, u.String(), nil
}
