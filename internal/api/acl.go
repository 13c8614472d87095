package api

import (
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bleepstore/bleepstore/internal/meta"
)

// AccessControlPolicy represents the XML structure for ACL.
type AccessControlPolicy struct {
	XMLName           xml.Name          `xml:"AccessControlPolicy"`
	Xmlns             string            `xml:"xmlns,attr,omitempty"`
	Owner             Owner             `xml:"Owner"`
	AccessControlList AccessControlList `xml:"AccessControlList"`
}

// AccessControlList represents the list of grants.
type AccessControlList struct {
	Grants []GrantXML `xml:"Grant"`
}

// GrantXML represents a single grant in an ACL document.
type GrantXML struct {
	Grantee    Grantee `xml:"Grantee"`
	Permission string  `xml:"Permission"`
}

// Grantee represents who is granted access.
type Grantee struct {
	XMLName     xml.Name `xml:"Grantee"`
	XsiType     string   `xml:"http://www.w3.org/2001/XMLSchema-instance type,attr"`
	ID          string   `xml:"ID,omitempty"`
	DisplayName string   `xml:"DisplayName,omitempty"`
	URI         string   `xml:"URI,omitempty"`
}

// grantHeaders maps the x-amz-grant-* request headers to permissions.
var grantHeaders = map[string]meta.ACLPermission{
	"x-amz-grant-read":         meta.PermRead,
	"x-amz-grant-write":        meta.PermWrite,
	"x-amz-grant-read-acp":     meta.PermReadACP,
	"x-amz-grant-write-acp":    meta.PermWriteACP,
	"x-amz-grant-full-control": meta.PermFullControl,
}

// aclFromRequest resolves the ACL for a newly created resource from the
// x-amz-grant-* headers or the x-amz-acl canned header. Explicit grants
// take precedence when both are present. Returns the owner-private
// default when no ACL headers were sent.
func aclFromRequest(r *http.Request, owner Owner) (meta.ACL, *S3Error) {
	if acl, ok, err := aclFromGrantHeaders(r, owner); ok || err != nil {
		return acl, err
	}

	canned := r.Header.Get("x-amz-acl")
	if canned == "" {
		return meta.PrivateACL(owner.ID, owner.DisplayName), nil
	}
	if !meta.ValidCannedACL(canned) {
		return meta.ACL{}, ErrInvalidArgument
	}
	return meta.CannedACL(canned, owner.ID, owner.DisplayName), nil
}

// aclFromGrantHeaders parses the x-amz-grant-* headers. Each header value
// is a comma-separated list of id="..." or uri="..." grantees.
func aclFromGrantHeaders(r *http.Request, owner Owner) (meta.ACL, bool, *S3Error) {
	acl := meta.ACL{OwnerID: owner.ID, OwnerDisplay: owner.DisplayName}
	found := false

	for header, perm := range grantHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		found = true
		for _, entry := range strings.Split(value, ",") {
			entry = strings.TrimSpace(entry)
			eq := strings.Index(entry, "=")
			if eq < 0 {
				return meta.ACL{}, true, ErrInvalidArgument
			}
			kind := strings.ToLower(strings.TrimSpace(entry[:eq]))
			ref := strings.Trim(strings.TrimSpace(entry[eq+1:]), `"`)
			if ref == "" {
				return meta.ACL{}, true, ErrInvalidArgument
			}
			switch kind {
			case "id":
				acl.Grants = append(acl.Grants, meta.Grant{
					Type:       meta.GranteeCanonicalUser,
					GranteeID:  ref,
					Permission: perm,
				})
			case "uri":
				acl.Grants = append(acl.Grants, meta.Grant{
					Type:       meta.GranteeGroup,
					GranteeURI: ref,
					Permission: perm,
				})
			default:
				return meta.ACL{}, true, ErrInvalidArgument
			}
		}
	}

	if !found {
		return meta.ACL{}, false, nil
	}
	return acl, true, nil
}

// GetBucketAcl handles GET /{bucket}?acl - GetBucketAcl.
func (h *Handler) GetBucketAcl(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	b, err := h.meta.GetBucket(r.Context(), bucket)
	if err != nil {
		if errors.Is(err, meta.ErrBucketNotFound) {
			WriteErrorWithResource(w, ErrNoSuchBucket, "/"+bucket)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket)
		return
	}

	writeXML(w, http.StatusOK, metaACLToXML(b.ACL))
}

// PutBucketAcl handles PUT /{bucket}?acl - PutBucketAcl.
func (h *Handler) PutBucketAcl(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)

	b, err := h.meta.GetBucket(r.Context(), bucket)
	if err != nil {
		if errors.Is(err, meta.ErrBucketNotFound) {
			WriteErrorWithResource(w, ErrNoSuchBucket, "/"+bucket)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket)
		return
	}

	acl, s3err := h.aclFromPutRequest(r, Owner{ID: b.OwnerID, DisplayName: b.OwnerDisplay})
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	if err := h.meta.UpdateBucketACL(r.Context(), bucket, acl); err != nil {
		if errors.Is(err, meta.ErrBucketNotFound) {
			WriteErrorWithResource(w, ErrNoSuchBucket, "/"+bucket)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetObjectAcl handles GET /{bucket}/{key}?acl - GetObjectAcl.
func (h *Handler) GetObjectAcl(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	obj, err := h.meta.GetObject(r.Context(), bucket, key)
	if err != nil {
		if errors.Is(err, meta.ErrObjectNotFound) {
			WriteErrorWithResource(w, ErrNoSuchKey, "/"+bucket+"/"+key)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}

	writeXML(w, http.StatusOK, metaACLToXML(obj.ACL))
}

// PutObjectAcl handles PUT /{bucket}/{key}?acl - PutObjectAcl.
func (h *Handler) PutObjectAcl(w http.ResponseWriter, r *http.Request) {
	bucket := GetBucket(r)
	key := GetKey(r)

	if s3err := h.requireBucket(r, bucket); s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket)
		return
	}

	obj, err := h.meta.GetObject(r.Context(), bucket, key)
	if err != nil {
		if errors.Is(err, meta.ErrObjectNotFound) {
			WriteErrorWithResource(w, ErrNoSuchKey, "/"+bucket+"/"+key)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}

	acl, s3err := h.aclFromPutRequest(r, Owner{ID: obj.ACL.OwnerID, DisplayName: obj.ACL.OwnerDisplay})
	if s3err != nil {
		WriteErrorWithResource(w, s3err, "/"+bucket+"/"+key)
		return
	}

	if err := h.meta.UpdateObjectACL(r.Context(), bucket, key, acl); err != nil {
		if errors.Is(err, meta.ErrObjectNotFound) {
			WriteErrorWithResource(w, ErrNoSuchKey, "/"+bucket+"/"+key)
			return
		}
		WriteErrorWithResource(w, ErrInternalError, "/"+bucket+"/"+key)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// aclFromPutRequest resolves the ACL for a Put*Acl call: grant headers or
// the canned header first, then an explicit XML body, then the
// owner-private default when neither is present.
func (h *Handler) aclFromPutRequest(r *http.Request, resourceOwner Owner) (meta.ACL, *S3Error) {
	if acl, ok, s3err := aclFromGrantHeaders(r, resourceOwner); ok || s3err != nil {
		return acl, s3err
	}

	if canned := r.Header.Get("x-amz-acl"); canned != "" {
		if !meta.ValidCannedACL(canned) {
			return meta.ACL{}, ErrInvalidArgument
		}
		return meta.CannedACL(canned, resourceOwner.ID, resourceOwner.DisplayName), nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return meta.ACL{}, ErrInvalidRequest
	}
	if len(body) == 0 {
		return meta.PrivateACL(resourceOwner.ID, resourceOwner.DisplayName), nil
	}

	var policy AccessControlPolicy
	if err := xml.Unmarshal(body, &policy); err != nil {
		return meta.ACL{}, ErrMalformedACL
	}
	acl, ok := xmlACLToMeta(&policy)
	if !ok {
		return meta.ACL{}, ErrMalformedACL
	}
	return acl, nil
}

// metaACLToXML converts a stored ACL to an XML AccessControlPolicy.
func metaACLToXML(acl meta.ACL) *AccessControlPolicy {
	response := &AccessControlPolicy{
		Xmlns: s3Namespace,
		Owner: Owner{
			ID:          acl.OwnerID,
			DisplayName: acl.OwnerDisplay,
		},
		AccessControlList: AccessControlList{
			Grants: make([]GrantXML, len(acl.Grants)),
		},
	}

	for i, g := range acl.Grants {
		grant := GrantXML{Permission: string(g.Permission)}
		switch g.Type {
		case meta.GranteeCanonicalUser:
			grant.Grantee = Grantee{
				XsiType:     "CanonicalUser",
				ID:          g.GranteeID,
				DisplayName: g.GranteeName,
			}
		case meta.GranteeGroup:
			grant.Grantee = Grantee{
				XsiType: "Group",
				URI:     g.GranteeURI,
			}
		}
		response.AccessControlList.Grants[i] = grant
	}

	return response
}

// xmlACLToMeta converts an XML AccessControlPolicy to a stored ACL. The
// second return is false when a grantee type or permission is not one we
// recognize.
func xmlACLToMeta(policy *AccessControlPolicy) (meta.ACL, bool) {
	acl := meta.ACL{
		OwnerID:      policy.Owner.ID,
		OwnerDisplay: policy.Owner.DisplayName,
		Grants:       make([]meta.Grant, len(policy.AccessControlList.Grants)),
	}

	for i, g := range policy.AccessControlList.Grants {
		grant := meta.Grant{Permission: meta.ACLPermission(g.Permission)}
		switch grant.Permission {
		case meta.PermFullControl, meta.PermRead, meta.PermWrite, meta.PermReadACP, meta.PermWriteACP:
		default:
			return meta.ACL{}, false
		}

		switch g.Grantee.XsiType {
		case "CanonicalUser":
			grant.Type = meta.GranteeCanonicalUser
			grant.GranteeID = g.Grantee.ID
			grant.GranteeName = g.Grantee.DisplayName
		case "Group":
			grant.Type = meta.GranteeGroup
			grant.GranteeURI = g.Grantee.URI
		default:
			return meta.ACL{}, false
		}

		acl.Grants[i] = grant
	}

	return acl, true
}
