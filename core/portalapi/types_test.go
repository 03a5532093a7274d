package portalapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"staffdesk/core/authz"
)

func TestGroupSlotNormalization(t *testing.T) {
	raw := `{"id":4,"name":"Ops","checker_id":"","approver_1_id":0,"approver_2_id":"12","approver_3_id":null}`
	var g Group
	require.NoError(t, json.Unmarshal([]byte(raw), &g))
	require.Equal(t, authz.Chain{Approver2: 12}, g.Chain())
	require.Equal(t, authz.GroupID(4), g.Entity().OwnerGroupID)
}

func TestNullableIDRejectsGarbage(t *testing.T) {
	var g Group
	err := json.Unmarshal([]byte(`{"id":1,"checker_id":"abc"}`), &g)
	require.Error(t, err)
}

func TestNullableIDKeepsLargeIntegersAndRejectsFractions(t *testing.T) {
	var g Group
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"approver_1_id":9007199254740993}`), &g))
	require.Equal(t, NullableID(9007199254740993), g.Approver1ID)

	require.Error(t, json.Unmarshal([]byte(`{"id":1,"approver_2_id":1.5}`), &g))
	require.Error(t, json.Unmarshal([]byte(`{"id":1,"checker_id":1e3}`), &g))
}

func TestNullableIDMarshalsUnassignedAsNull(t *testing.T) {
	raw, err := json.Marshal(ChainFields{Approver1ID: 7})
	require.NoError(t, err)
	require.JSONEq(t, `{"checker_id":null,"approver_1_id":7,"approver_2_id":null,"approver_3_id":null}`, string(raw))
}

func TestProfileGroupsDropUnassigned(t *testing.T) {
	var p Profile
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"group_ids":[3,0,""],"delegation_group_ids":["7",null]}`), &p))
	require.Equal(t, []authz.GroupID{3}, p.MemberGroups())
	require.Equal(t, []authz.GroupID{7}, p.DelegationGroups())
}
