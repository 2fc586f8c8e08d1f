package configops

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	got := NormalizePath(" .channels.telegram.enable. ")
	if got != "channels.telegram.enabled" {
		t.Fatalf("unexpected path: %q", got)
	}
}

func TestParseValue(t *testing.T) {
	if v := ParseValue("true", false); v != true {
		t.Fatalf("expected bool, got %#v", v)
	}
	if v := ParseValue("42", false); v != int64(42) {
		t.Fatalf("expected int64, got %#v", v)
	}
	if v := ParseValue("0.25", false); v != 0.25 {
		t.Fatalf("expected float, got %#v", v)
	}
	if v := ParseValue(`"007"`, false); v != "007" {
		t.Fatalf("expected quoted string, got %#v", v)
	}
	list, ok := ParseValue("alice, @bob,,", true).([]interface{})
	if !ok || len(list) != 2 || list[1] != "@bob" {
		t.Fatalf("unexpected list: %#v", list)
	}
}

func TestSetAndGet(t *testing.T) {
	root := map[string]interface{}{"gateway": map[string]interface{}{"port": 1}}
	if err := Set(root, "gateway.port", int64(9000)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := Set(root, "sentinel.enabled", true); err != nil {
		t.Fatalf("set nested: %v", err)
	}
	if v, ok := Get(root, "gateway.port"); !ok || v != int64(9000) {
		t.Fatalf("get: %#v %v", v, ok)
	}
	if _, ok := Get(root, "gateway.port.deeper"); ok {
		t.Fatalf("expected scalar segment to stop lookup")
	}
	if err := Set(root, "gateway.port.deeper", 1); err == nil {
		t.Fatalf("expected error setting under a scalar")
	}
}

func TestCommitRejectsInvalidValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfgMap, err := LoadMap(path)
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if err := Set(cfgMap, "fleet.crash_probability", 2.5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := Commit(path, cfgMap); err == nil {
		t.Fatalf("expected validation failure")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("config should not be written, stat err=%v", err)
	}
}

func TestCommitRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfgMap, err := LoadMap(path)
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if err := Set(cfgMap, "gateway.colour", "blue"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := Commit(path, cfgMap); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestCommitBacksUpAndRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfgMap, err := LoadMap(path)
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	backup, err := Commit(path, cfgMap)
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if backup != "" {
		t.Fatalf("no backup expected for a new file, got %q", backup)
	}
	original, _ := os.ReadFile(path)

	if err := Set(cfgMap, "gateway.port", int64(19000)); err != nil {
		t.Fatalf("set: %v", err)
	}
	backup, err = Commit(path, cfgMap)
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	reloaded, err := LoadMap(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if v, _ := Get(reloaded, "gateway.port"); v != float64(19000) {
		t.Fatalf("port not written: %#v", v)
	}

	if err := Rollback(path, backup); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	restored, _ := os.ReadFile(path)
	if string(restored) != string(original) {
		t.Fatalf("rollback did not restore original content")
	}
}
