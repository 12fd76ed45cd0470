package ops

import "testing"

func TestBuildInputOrdersAndClassifiesParts(t *testing.T) {
	input := buildInput(
		"hello",
		[]ImageInput{{Source: "https://example.com/a.png"}, {Source: "/tmp/local.png"}},
		[]AppMention{{Name: "linear", Path: "app://linear"}},
		[]SkillMention{{Name: "review", Path: "/skills/review.md"}},
	)

	if len(input) != 5 {
		t.Fatalf("expected 5 input parts, got %d: %+v", len(input), input)
	}
	if input[0]["type"] != "text" || input[0]["text"] != "hello" {
		t.Fatalf("unexpected text part: %+v", input[0])
	}
	if input[1]["type"] != "image" || input[1]["url"] != "https://example.com/a.png" {
		t.Fatalf("unexpected remote image part: %+v", input[1])
	}
	if input[2]["type"] != "localImage" || input[2]["path"] != "/tmp/local.png" {
		t.Fatalf("unexpected local image part: %+v", input[2])
	}
	if input[3]["type"] != "appMention" || input[3]["path"] != "app://linear" {
		t.Fatalf("unexpected app mention part: %+v", input[3])
	}
	if input[4]["type"] != "skillMention" || input[4]["path"] != "/skills/review.md" {
		t.Fatalf("unexpected skill mention part: %+v", input[4])
	}
}

func TestBuildInputOmitsBlankText(t *testing.T) {
	input := buildInput("   ", nil, nil, nil)
	if len(input) != 0 {
		t.Fatalf("expected no parts for blank text, got %+v", input)
	}
}

func TestBuildInputDedupesAppAndSkillMentions(t *testing.T) {
	input := buildInput("hi",
		nil,
		[]AppMention{{Name: "linear", Path: "app://linear"}, {Name: "linear", Path: "app://linear"}},
		[]SkillMention{{Name: "review", Path: "/skills/review.md"}, {Name: "review", Path: "/skills/review.md"}},
	)
	// text + one app mention + one skill mention
	if len(input) != 3 {
		t.Fatalf("expected duplicates collapsed, got %d parts: %+v", len(input), input)
	}
}

func TestBuildInputDropsInvalidAppAndSkillMentions(t *testing.T) {
	input := buildInput("hi",
		nil,
		[]AppMention{{Name: "", Path: "app://linear"}, {Name: "bad", Path: "not-a-app-uri"}},
		[]SkillMention{{Name: "", Path: "/skills/review.md"}, {Name: "bad", Path: "relative/path.md"}},
	)
	if len(input) != 1 {
		t.Fatalf("expected only the text part to survive, got %+v", input)
	}
}
