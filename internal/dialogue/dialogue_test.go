package dialogue

import (
	"testing"

	"github.com/contrabot-io/contrabot/internal/userstore"
)

func TestFullRegistration(t *testing.T) {
	state, prompt := Begin()
	if state.Stage != StageFirstName {
		t.Fatalf("Begin stage = %v", state.Stage)
	}
	if prompt == "" {
		t.Fatal("Begin returned no prompt")
	}

	answers := []string{"Ann", "Lee", "555-1234", "a@x.com", "a@inst.edu"}
	var profile *userstore.Profile
	for i, answer := range answers {
		var reply string
		state, reply, profile = Advance(state, answer)
		last := i == len(answers)-1
		if !last && reply == "" {
			t.Errorf("no prompt after answer %d", i)
		}
		if !last && profile != nil {
			t.Errorf("profile completed early at answer %d", i)
		}
	}

	if profile == nil {
		t.Fatal("no profile after final answer")
	}
	want := userstore.Profile{
		PersonalEmail: "a@x.com",
		FirstName:     "Ann",
		LastName:      "Lee",
		Email:         "a@inst.edu",
		Phone:         "555-1234",
	}
	if *profile != want {
		t.Errorf("profile = %+v, want %+v", *profile, want)
	}
	if state.Stage != StageStart {
		t.Errorf("stage after completion = %v, want Start", state.Stage)
	}
}

// Each intermediate state carries exactly the fields collected so far.
func TestStateAccumulation(t *testing.T) {
	state, _ := Begin()
	state, _, _ = Advance(state, "Ann")
	if state.FirstName != "Ann" || state.LastName != "" {
		t.Errorf("after first name: %+v", state)
	}
	state, _, _ = Advance(state, "Lee")
	if state.FirstName != "Ann" || state.LastName != "Lee" || state.Phone != "" {
		t.Errorf("after last name: %+v", state)
	}
	state, _, _ = Advance(state, "555-1234")
	if state.Phone != "555-1234" || state.PersonalEmail != "" {
		t.Errorf("after phone: %+v", state)
	}
}

func TestAdvanceFromStartIsNoop(t *testing.T) {
	state, reply, profile := Advance(State{}, "random text")
	if state.Stage != StageStart || reply != "" || profile != nil {
		t.Errorf("Advance from Start = %+v, %q, %v", state, reply, profile)
	}
}

func TestStoreLifecycle(t *testing.T) {
	st := NewStore()

	// Absent means Start
	if got := st.Get("u1"); got.Stage != StageStart {
		t.Errorf("initial state = %+v", got)
	}

	mid := State{Stage: StagePhone, FirstName: "Ann", LastName: "Lee"}
	st.Set("u1", mid)
	if got := st.Get("u1"); got != mid {
		t.Errorf("Get = %+v, want %+v", got, mid)
	}

	// Identities are independent
	if got := st.Get("u2"); got.Stage != StageStart {
		t.Errorf("u2 state = %+v", got)
	}

	st.Reset("u1")
	if got := st.Get("u1"); got.Stage != StageStart {
		t.Errorf("state after Reset = %+v", got)
	}

	// Storing a Start state clears the entry
	st.Set("u1", mid)
	st.Set("u1", State{})
	if got := st.Get("u1"); got.Stage != StageStart {
		t.Errorf("state after Set(Start) = %+v", got)
	}
}
