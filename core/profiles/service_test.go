package profiles

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aegis-ecc/config"
	"aegis-ecc/core/apperr"
	"aegis-ecc/core/applications"
	"aegis-ecc/core/identity"
	"aegis-ecc/core/store"
	"aegis-ecc/core/utils"
)

type testEnv struct {
	svc             *Service
	applicationsSvc *applications.Service
	profiles        store.ProfilesStore
	applications    store.ApplicationsStore
	refs            store.RefsStore
	users           store.UsersStore
	userSeq         int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBPath:   filepath.Join(t.TempDir(), "test.db"),
		Profiles: config.ProfilesConfig{MaxContactsPerProfile: 5},
	}
	logger := utils.NewSilentLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, "sqlite", logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	env := &testEnv{
		profiles:     store.NewProfilesStore(db),
		applications: store.NewApplicationsStore(db),
		refs:         store.NewRefsStore(db),
		users:        store.NewUsersStore(db),
	}
	env.svc = NewService(env.profiles, env.applications, cfg, logger)
	env.applicationsSvc = applications.NewService(env.applications, env.refs, env.users, env.profiles, logger)
	return env
}

func (env *testEnv) newUser(t *testing.T, role string) identity.Actor {
	t.Helper()
	env.userSeq++
	user := &store.User{
		Name:         "Test " + role,
		Email:        fmt.Sprintf("%s-%d@example.com", strings.ToLower(role), env.userSeq),
		PasswordHash: "x",
		Role:         role,
		Active:       true,
	}
	if _, err := env.users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return identity.Actor{UserID: user.ID, Role: role}
}

func (env *testEnv) submitApplication(t *testing.T, actor identity.Actor) *store.VolunteerApplication {
	t.Helper()
	agency := &store.Agency{Name: fmt.Sprintf("Agency %d", env.userSeq)}
	if _, err := env.refs.CreateAgency(context.Background(), agency); err != nil {
		t.Fatalf("create agency: %v", err)
	}
	app, err := env.applicationsSvc.Submit(context.Background(), actor, applications.SubmitInput{AgencyID: agency.ID})
	if err != nil {
		t.Fatalf("submit application: %v", err)
	}
	return app
}

func profileInput(contacts ...ContactInput) EmergencyProfileInput {
	return EmergencyProfileInput{
		FullName:       "Jordan Rahman",
		BloodType:      "O+",
		Allergies:      "Penicillin",
		ConsentGivenAt: time.Now().UTC(),
		Contacts:       contacts,
	}
}

func TestCreateProfileOncePerUser(t *testing.T) {
	env := newTestEnv(t)
	civilian := env.newUser(t, identity.RoleCivilian)

	p, _, err := env.svc.CreateMine(context.Background(), civilian, profileInput())
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if p.ID == 0 || p.UserID != civilian.UserID {
		t.Fatalf("unexpected profile: %+v", p)
	}

	if _, _, err := env.svc.CreateMine(context.Background(), civilian, profileInput()); apperr.CodeOf(err) != "PROFILE_ALREADY_EXISTS" {
		t.Fatalf("second profile should conflict, got %v", err)
	}
}

func TestCreateProfileValidation(t *testing.T) {
	env := newTestEnv(t)
	civilian := env.newUser(t, identity.RoleCivilian)

	in := profileInput()
	in.ConsentGivenAt = time.Time{}
	if _, _, err := env.svc.CreateMine(context.Background(), civilian, in); apperr.KindOf(err) != apperr.KindValidationFailed {
		t.Fatalf("missing consent should fail, got %v", err)
	}

	in = profileInput()
	in.BloodType = "Q+"
	if _, _, err := env.svc.CreateMine(context.Background(), civilian, in); apperr.KindOf(err) != apperr.KindValidationFailed {
		t.Fatalf("unknown blood type should fail, got %v", err)
	}

	contacts := make([]ContactInput, 6)
	for i := range contacts {
		contacts[i] = ContactInput{Name: fmt.Sprintf("Contact %d", i), Phone: "01700000000"}
	}
	if _, _, err := env.svc.CreateMine(context.Background(), civilian, profileInput(contacts...)); apperr.KindOf(err) != apperr.KindValidationFailed {
		t.Fatalf("too many contacts should fail, got %v", err)
	}
}

func TestContactsOrderedPrimaryFirst(t *testing.T) {
	env := newTestEnv(t)
	civilian := env.newUser(t, identity.RoleCivilian)

	_, _, err := env.svc.CreateMine(context.Background(), civilian, profileInput(
		ContactInput{Name: "Sibling", Phone: "01711111111"},
		ContactInput{Name: "Parent", Phone: "01722222222", IsPrimary: true},
	))
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	_, contacts, err := env.svc.GetMine(context.Background(), civilian)
	if err != nil {
		t.Fatalf("get mine: %v", err)
	}
	if len(contacts) != 2 || !contacts[0].IsPrimary || contacts[0].Name != "Parent" {
		t.Fatalf("primary contact should sort first: %+v", contacts)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	civilian := env.newUser(t, identity.RoleCivilian)

	if _, _, err := env.svc.UpdateMine(context.Background(), civilian, profileInput()); apperr.CodeOf(err) != "PROFILE_NOT_FOUND" {
		t.Fatalf("update without profile should fail, got %v", err)
	}

	_, _, err := env.svc.CreateMine(context.Background(), civilian, profileInput(
		ContactInput{Name: "Sibling", Phone: "01711111111"},
	))
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}

	// Field update without contacts keeps the existing contact set.
	in := profileInput()
	in.Contacts = nil
	in.Medications = "Insulin"
	p, contacts, err := env.svc.UpdateMine(context.Background(), civilian, in)
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if p.Medications != "Insulin" || len(contacts) != 1 {
		t.Fatalf("update lost state: %+v contacts=%+v", p, contacts)
	}

	// Providing contacts replaces the set.
	_, contacts, err = env.svc.UpdateMine(context.Background(), civilian, profileInput(
		ContactInput{Name: "Neighbor", Phone: "01733333333", IsPrimary: true},
	))
	if err != nil {
		t.Fatalf("update contacts: %v", err)
	}
	if len(contacts) != 1 || contacts[0].Name != "Neighbor" {
		t.Fatalf("contacts not replaced: %+v", contacts)
	}
}

func TestProfileAccessScoping(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newUser(t, identity.RoleCivilian)
	otherCivilian := env.newUser(t, identity.RoleCivilian)
	volunteer := env.newUser(t, identity.RoleVolunteer)
	admin := env.newUser(t, identity.RoleAdmin)

	p, _, err := env.svc.CreateMine(context.Background(), owner, profileInput())
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}

	if _, _, err := env.svc.GetMine(context.Background(), otherCivilian); apperr.CodeOf(err) != "PROFILE_NOT_FOUND" {
		t.Fatalf("GetMine should scope to owner, got %v", err)
	}
	if _, _, err := env.svc.Get(context.Background(), otherCivilian, p.ID); apperr.KindOf(err) != apperr.KindNotAuthorized {
		t.Fatalf("civilian lookup by id should be forbidden, got %v", err)
	}
	for _, responder := range []identity.Actor{volunteer, admin} {
		got, _, err := env.svc.Get(context.Background(), responder, p.ID)
		if err != nil || got.ID != p.ID {
			t.Fatalf("%s lookup: %+v (err %v)", responder.Role, got, err)
		}
	}

	if _, err := env.svc.List(context.Background(), volunteer, 10, 0); apperr.KindOf(err) != apperr.KindNotAuthorized {
		t.Fatalf("listing should be admin-only, got %v", err)
	}
	items, err := env.svc.List(context.Background(), admin, 10, 0)
	if err != nil || len(items) != 1 {
		t.Fatalf("admin list = %d (err %v), want 1", len(items), err)
	}
}

func TestVolunteerProfileSeededOnApplication(t *testing.T) {
	env := newTestEnv(t)
	applicant := env.newUser(t, identity.RoleCivilian)

	if _, err := env.svc.GetVolunteer(context.Background(), applicant); apperr.CodeOf(err) != "PROFILE_NOT_FOUND" {
		t.Fatalf("profile before applying should be absent, got %v", err)
	}

	env.submitApplication(t, applicant)

	p, err := env.svc.GetVolunteer(context.Background(), applicant)
	if err != nil {
		t.Fatalf("get volunteer profile: %v", err)
	}
	if p.IsAvailable {
		t.Fatalf("fresh profile should start unavailable: %+v", p)
	}
}

func TestAvailabilityRequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	applicant := env.newUser(t, identity.RoleCivilian)
	admin := env.newUser(t, identity.RoleAdmin)
	app := env.submitApplication(t, applicant)

	if _, err := env.svc.SetAvailability(context.Background(), applicant, true, nil, nil); apperr.CodeOf(err) != "NOT_AN_APPROVED_VOLUNTEER" {
		t.Fatalf("pending applicant cannot go on call, got %v", err)
	}

	if _, err := env.applicationsSvc.Review(context.Background(), admin, app.ID, true, "ok"); err != nil {
		t.Fatalf("approve application: %v", err)
	}

	lat, lng := 23.7, 90.4
	p, err := env.svc.SetAvailability(context.Background(), applicant, true, &lat, &lng)
	if err != nil {
		t.Fatalf("set availability: %v", err)
	}
	if !p.IsAvailable || p.LastKnownLatitude == nil || *p.LastKnownLatitude != lat {
		t.Fatalf("availability not recorded: %+v", p)
	}
}

func TestUpdateVolunteerProfile(t *testing.T) {
	env := newTestEnv(t)
	applicant := env.newUser(t, identity.RoleCivilian)
	env.submitApplication(t, applicant)

	lat := 23.7
	if _, err := env.svc.UpdateVolunteer(context.Background(), applicant, VolunteerInput{Latitude: &lat}); apperr.KindOf(err) != apperr.KindValidationFailed {
		t.Fatalf("latitude without longitude should fail, got %v", err)
	}

	radius := 900.0
	if _, err := env.svc.UpdateVolunteer(context.Background(), applicant, VolunteerInput{AvailabilityRadiusKm: &radius}); apperr.KindOf(err) != apperr.KindValidationFailed {
		t.Fatalf("out-of-range radius should fail, got %v", err)
	}

	radius = 25
	lng := 90.4
	p, err := env.svc.UpdateVolunteer(context.Background(), applicant, VolunteerInput{
		AvailabilityRadiusKm: &radius, Latitude: &lat, Longitude: &lng,
	})
	if err != nil {
		t.Fatalf("update volunteer profile: %v", err)
	}
	if p.AvailabilityRadiusKm != 25 || p.LastKnownLongitude == nil || *p.LastKnownLongitude != lng {
		t.Fatalf("profile not updated: %+v", p)
	}
}
