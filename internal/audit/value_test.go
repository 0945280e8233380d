package audit

import (
	"reflect"
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name  string
		input Value
		want  Value
	}{
		{
			name:  "plain fields pass through",
			input: Object{"name": "alice", "age": 30},
			want:  Object{"name": "alice", "age": 30},
		},
		{
			name:  "password is redacted",
			input: Object{"password": "hunter2", "name": "alice"},
			want:  Object{"password": RedactionMarker, "name": "alice"},
		},
		{
			name:  "substring match catches compound keys",
			input: Object{"apiToken": "abc", "user_password_hash": "xyz"},
			want:  Object{"apiToken": RedactionMarker, "user_password_hash": RedactionMarker},
		},
		{
			name:  "matching is case insensitive",
			input: Object{"PASSWORD": "hunter2", "Secret": "s"},
			want:  Object{"PASSWORD": RedactionMarker, "Secret": RedactionMarker},
		},
		{
			name: "nested objects are traversed",
			input: Object{
				"user": Object{
					"name":     "alice",
					"password": "hunter2",
				},
			},
			want: Object{
				"user": Object{
					"name":     "alice",
					"password": RedactionMarker,
				},
			},
		},
		{
			name: "arrays of objects are traversed",
			input: Object{
				"accounts": []Value{
					Object{"id": 1, "ssn": "123-45-6789"},
					Object{"id": 2, "name": "bob"},
				},
			},
			want: Object{
				"accounts": []Value{
					Object{"id": 1, "ssn": RedactionMarker},
					Object{"id": 2, "name": "bob"},
				},
			},
		},
		{
			name:  "sensitive key with non-scalar value is replaced wholesale",
			input: Object{"credentials_secret": Object{"user": "a", "pass": "b"}},
			want:  Object{"credentials_secret": RedactionMarker},
		},
		{
			name:  "scalar input passes through",
			input: "just a string",
			want:  "just a string",
		},
		{
			name:  "nil input passes through",
			input: nil,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Redact(tt.input, DefaultSensitiveFields)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Redact() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRedactDoesNotMutateInput(t *testing.T) {
	input := Object{
		"password": "hunter2",
		"nested":   Object{"token": "abc"},
	}
	Redact(input, DefaultSensitiveFields)

	if input["password"] != "hunter2" {
		t.Errorf("input mutated: password = %v", input["password"])
	}
	if input["nested"].(Object)["token"] != "abc" {
		t.Errorf("input mutated: nested token = %v", input["nested"].(Object)["token"])
	}
}

func TestRedactCustomFields(t *testing.T) {
	input := Object{"internal_code": "x", "password": "hunter2"}
	got := Redact(input, []string{"internal_code"}).(Object)

	if got["internal_code"] != RedactionMarker {
		t.Errorf("internal_code not redacted: %v", got["internal_code"])
	}
	// Custom list replaces the defaults entirely.
	if got["password"] != "hunter2" {
		t.Errorf("password should pass through with custom list, got %v", got["password"])
	}
}
