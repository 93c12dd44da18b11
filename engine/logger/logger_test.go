package logger

import (
	"testing"

	"github.com/charmbracelet/log"
)

func TestForReturnsSameLogger(t *testing.T) {
	if For("batcher") != For("batcher") {
		t.Fatal("For returned distinct loggers for the same component")
	}
}

func TestSetLevelPropagates(t *testing.T) {
	sub := For("scene")
	if err := SetLevel("debug"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if sub.GetLevel() != log.DebugLevel {
		t.Fatalf("sub-logger level:\nhave %v\nwant %v", sub.GetLevel(), log.DebugLevel)
	}
	if err := SetLevel("info"); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if Default().GetLevel() != log.InfoLevel {
		t.Fatalf("root level:\nhave %v\nwant %v", Default().GetLevel(), log.InfoLevel)
	}
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	if err := SetLevel("loud"); err == nil {
		t.Fatal("SetLevel(loud): expected an error")
	}
}
