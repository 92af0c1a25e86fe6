package jcs

import "testing"

func TestCanonicalizeOrdersKeys(t *testing.T) {
	in := []byte(`{ "reason": "no deletes", "pattern": "^rm$" }`)
	want := `{"pattern":"^rm$","reason":"no deletes"}`
	out, err := Canonicalize(in)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(out) != want {
		t.Fatalf("unexpected canonical form: %s", string(out))
	}
}

func TestDigestIgnoresEncodingDifferences(t *testing.T) {
	cases := []struct {
		name string
		a    string
		b    string
	}{
		{
			name: "key_order",
			a:    `{"programs":[],"forbidden_substrings":["curl | sh"]}`,
			b:    `{"forbidden_substrings":["curl | sh"],"programs":[]}`,
		},
		{
			name: "whitespace",
			a:    `{"programs": [ ]}`,
			b:    `{"programs":[]}`,
		},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			digestA, err := Digest([]byte(testCase.a))
			if err != nil {
				t.Fatalf("digest a: %v", err)
			}
			digestB, err := Digest([]byte(testCase.b))
			if err != nil {
				t.Fatalf("digest b: %v", err)
			}
			if digestA != digestB {
				t.Fatalf("equivalent JSON produced different digests: %s vs %s", digestA, digestB)
			}
			if len(digestA) != 64 {
				t.Fatalf("digest length=%d want=64", len(digestA))
			}
		})
	}
}

func TestDigestDistinguishesContent(t *testing.T) {
	digestA, err := Digest([]byte(`{"forbidden_substrings":["mkfs"]}`))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	digestB, err := Digest([]byte(`{"forbidden_substrings":["mkswap"]}`))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if digestA == digestB {
		t.Fatal("different rule sets must not collide")
	}
}

func TestInvalidJSONRejected(t *testing.T) {
	if _, err := Canonicalize([]byte(`{"programs":`)); err == nil {
		t.Fatal("expected canonicalize error for truncated JSON")
	}
	if _, err := Digest([]byte(`{"programs":`)); err == nil {
		t.Fatal("expected digest error for truncated JSON")
	}
}
