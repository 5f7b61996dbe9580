package model

import "testing"

func TestValidKey(t *testing.T) {
	valid := []string{"C", "F#", "Am", "D#m", "B", "Gm"}
	for _, k := range valid {
		if !ValidKey(k) {
			t.Errorf("%q 应为合法调性", k)
		}
	}

	invalid := []string{"", "m", "H", "c", "A♭", "Cmaj", "F##", "Amm"}
	for _, k := range invalid {
		if ValidKey(k) {
			t.Errorf("%q 不应为合法调性", k)
		}
	}
}

func TestValidProject(t *testing.T) {
	if !ValidProject(Project{BPM: 120, Key: "Am"}) {
		t.Error("120/Am 应为合法工程设置")
	}
	if ValidProject(Project{BPM: 0, Key: "Am"}) {
		t.Error("bpm=0 不应通过校验")
	}
	if ValidProject(Project{BPM: -10, Key: "C"}) {
		t.Error("负bpm不应通过校验")
	}
	if ValidProject(Project{BPM: 120, Key: "X"}) {
		t.Error("非法调性不应通过校验")
	}
}
