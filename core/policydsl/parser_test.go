package policydsl

import (
	"strings"
	"testing"
)

func TestParseSourceCommentsAndTrailingCommas(t *testing.T) {
	statements, err := parseSource("test.policy", `
# leading comment
define_program(
    "ls",  # trailing comment
    args=[ARG_RFILES_OR_CWD,],
)
forbid_substrings(["a", "b",],)
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(statements))
	}
	if statements[0].name != "define_program" || statements[1].name != "forbid_substrings" {
		t.Fatalf("unexpected statement names: %+v", statements)
	}
}

func TestParseSourceStringEscapes(t *testing.T) {
	statements, err := parseSource("test.policy", `forbid_substrings(["tab\there", "quote\"inside", 'single'])`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	list := statements[0].args[0].value
	if list.kind != valueList || len(list.list) != 3 {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list.list[0].str != "tab\there" || list.list[1].str != `quote"inside` || list.list[2].str != "single" {
		t.Fatalf("unexpected strings: %+v", list.list)
	}
}

func TestParseSourceErrorsCarryLineNumbers(t *testing.T) {
	cases := []struct {
		name  string
		input string
		wants string
	}{
		{name: "unterminated_string", input: "\n\nforbid_substrings([\"oops\n])", wants: "test.policy:3: unterminated string"},
		{name: "invalid_escape", input: `forbid_substrings(["\x"])`, wants: `invalid escape \x`},
		{name: "unexpected_character", input: `define_program(%)`, wants: `unexpected character "%"`},
		{name: "missing_paren", input: `define_program "ls"`, wants: "expected ("},
		{name: "bare_value_statement", input: `"just a string"`, wants: "expected statement name"},
		{name: "unclosed_call", input: `define_program("ls"`, wants: "expected )"},
		{name: "unclosed_list", input: `forbid_substrings(["a"`, wants: "expected ]"},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := parseSource("test.policy", testCase.input)
			if err == nil {
				t.Fatal("expected parse error")
			}
			if !strings.Contains(err.Error(), testCase.wants) {
				t.Fatalf("error %q should contain %q", err.Error(), testCase.wants)
			}
		})
	}
}

func TestParseSourceBoolAndIdentValues(t *testing.T) {
	statements, err := parseSource("test.policy", `define_program("ls", option_bundling=True, combined_format=False, args=[ARG_OPAQUE_VALUE])`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	args := statements[0].args
	if args[1].value.kind != valueBool || !args[1].value.boolean {
		t.Fatalf("option_bundling should parse as True: %+v", args[1].value)
	}
	if args[2].value.kind != valueBool || args[2].value.boolean {
		t.Fatalf("combined_format should parse as False: %+v", args[2].value)
	}
	list := args[3].value
	if list.kind != valueList || list.list[0].kind != valueIdent || list.list[0].str != "ARG_OPAQUE_VALUE" {
		t.Fatalf("args should parse as identifiers: %+v", list)
	}
}

func TestParseSourceNestedCalls(t *testing.T) {
	statements, err := parseSource("test.policy", `define_program("tar", options=[flag("-v"), opt("-f", ARG_WFILE, required=True)])`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	options := statements[0].args[1].value
	if options.kind != valueList || len(options.list) != 2 {
		t.Fatalf("unexpected options value: %+v", options)
	}
	if options.list[0].kind != valueCall || options.list[0].call.name != "flag" {
		t.Fatalf("first option should be a flag call: %+v", options.list[0])
	}
	optCall := options.list[1]
	if optCall.kind != valueCall || optCall.call.name != "opt" || len(optCall.call.args) != 3 {
		t.Fatalf("second option should be a three-argument opt call: %+v", optCall)
	}
}
