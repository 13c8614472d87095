package meta

// ACLPermission is a grant permission level.
type ACLPermission string

// Grant permissions.
const (
	PermFullControl ACLPermission = "FULL_CONTROL"
	PermRead        ACLPermission = "READ"
	PermWrite       ACLPermission = "WRITE"
	PermReadACP     ACLPermission = "READ_ACP"
	PermWriteACP    ACLPermission = "WRITE_ACP"
)

// GranteeType distinguishes user grants from group grants.
type GranteeType string

// Grantee types.
const (
	GranteeCanonicalUser GranteeType = "CanonicalUser"
	GranteeGroup         GranteeType = "Group"
)

// Well-known group URIs.
const (
	GroupAllUsers           = "http://acs.amazonaws.com/groups/global/AllUsers"
	GroupAuthenticatedUsers = "http://acs.amazonaws.com/groups/global/AuthenticatedUsers"
)

// Grant is a single ACL entry.
type Grant struct {
	Type        GranteeType   `json:"type"`
	GranteeID   string        `json:"grantee_id,omitempty"`
	GranteeName string        `json:"grantee_name,omitempty"`
	GranteeURI  string        `json:"grantee_uri,omitempty"`
	Permission  ACLPermission `json:"permission"`
}

// ACL is an access control list with its owning identity.
type ACL struct {
	OwnerID      string  `json:"owner_id"`
	OwnerDisplay string  `json:"owner_display,omitempty"`
	Grants       []Grant `json:"grants"`
}

// PrivateACL returns the default owner-only FULL_CONTROL ACL.
func PrivateACL(ownerID, ownerDisplay string) ACL {
	return ACL{
		OwnerID:      ownerID,
		OwnerDisplay: ownerDisplay,
		Grants: []Grant{{
			Type:        GranteeCanonicalUser,
			GranteeID:   ownerID,
			GranteeName: ownerDisplay,
			Permission:  PermFullControl,
		}},
	}
}

// CannedACL converts a canned ACL name to a concrete grant list. Unknown
// names fall back to private.
func CannedACL(name, ownerID, ownerDisplay string) ACL {
	acl := PrivateACL(ownerID, ownerDisplay)
	group := func(uri string, perm ACLPermission) Grant {
		return Grant{Type: GranteeGroup, GranteeURI: uri, Permission: perm}
	}
	switch name {
	case "public-read":
		acl.Grants = append(acl.Grants, group(GroupAllUsers, PermRead))
	case "public-read-write":
		acl.Grants = append(acl.Grants, group(GroupAllUsers, PermRead), group(GroupAllUsers, PermWrite))
	case "authenticated-read":
		acl.Grants = append(acl.Grants, group(GroupAuthenticatedUsers, PermRead))
	case "bucket-owner-read", "bucket-owner-full-control":
		// Single-owner deployments collapse these to private.
	}
	return acl
}

// ValidCannedACL reports whether name is one of the supported canned ACLs.
func ValidCannedACL(name string) bool {
	switch name {
	case "private", "public-read", "public-read-write", "authenticated-read",
		"bucket-owner-read", "bucket-owner-full-control":
		return true
	}
	return false
}
