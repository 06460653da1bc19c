package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserHasPermission(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		user *User
		perm string
		want bool
	}{
		{"nil user", nil, PermReviewRecord, false},
		{"no roles", &User{Email: "a@x"}, PermReviewRecord, false},
		{"reviewer reviews", &User{Roles: UserRoles{Team: []string{RoleReviewer}}}, PermReviewRecord, true},
		{"reviewer cannot verify", &User{Roles: UserRoles{Team: []string{RoleReviewer}}}, PermVerifyRecord, false},
		{"uploader uploads", &User{Roles: UserRoles{Project: []string{RoleUploader}}}, PermUploadDocument, true},
		{"team lead verifies", &User{Roles: UserRoles{Team: []string{RoleTeamLead}}}, PermVerifyRecord, true},
		{"team lead deletes", &User{Roles: UserRoles{Team: []string{RoleTeamLead}}}, PermDelete, true},
		{"sys admin manages system", &User{Roles: UserRoles{System: []string{RoleSysAdmin}}}, PermManageSystem, true},
		{"unknown role", &User{Roles: UserRoles{Team: []string{"guest"}}}, PermReviewRecord, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.HasPermission(tt.perm))
		})
	}
}

func TestNewSchemaDict(t *testing.T) {
	t.Parallel()

	p := &Processor{
		Name: "W-2",
		Attributes: []AttributeDef{
			{Name: "spud_date", CleaningFunction: "clean_date", PageOrderSort: ptr(2.0)},
			{Name: "casing", PageOrderSort: ptr(1.0), Subattributes: []AttributeDef{
				{Name: "size", CleaningFunction: "convert_hole_size_to_decimal"},
			}},
			{Name: "notes"},
		},
	}
	dict := NewSchemaDict(p)

	assert.Len(t, dict, 4)
	assert.Equal(t, "clean_date", dict["spud_date"].CleaningFunction)
	assert.Equal(t, "convert_hole_size_to_decimal", dict["casing::size"].CleaningFunction)
	assert.Empty(t, NewSchemaDict(nil))

	ordered := p.OrderedAttributes()
	assert.Equal(t, []string{"casing", "spud_date", "notes"}, []string{ordered[0].Name, ordered[1].Name, ordered[2].Name})
	assert.Equal(t, "spud_date", p.Attributes[0].Name, "schema order must not be mutated")
}
