package validators

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"certgate/internal/directory"
	"certgate/internal/validation"
)

// serverGroup checks team-prefixed server names against the requester's
// directory groups: a CN like "infra-web01.example.com" requires membership
// in the group the "infra" prefix maps to. The directory protocol itself is
// the collaborator's business; this validator only consumes the answer.
type serverGroup struct {
	dir           directory.Directory
	groupPrefixes map[string]string
}

func NewServerGroup(dir directory.Directory, params validation.Params) (validation.Validator, error) {
	if dir == nil {
		return nil, fmt.Errorf("directory collaborator is required")
	}
	prefixes, err := params.StringMap("group_prefixes")
	if err != nil {
		return nil, err
	}
	if len(prefixes) == 0 {
		return nil, fmt.Errorf("required parameter %q is missing", "group_prefixes")
	}
	return &serverGroup{dir: dir, groupPrefixes: prefixes}, nil
}

func (v *serverGroup) Name() string { return "server_group" }

func (v *serverGroup) Check(ctx context.Context, in validation.Input) validation.Outcome {
	cns := in.Request.CommonNames()
	if len(cns) == 0 {
		return validation.Fail(v.Name(), ReasonCNRequired, "request has no CN to check")
	}

	parts := strings.SplitN(cns[0], "-", 2)
	if len(parts) == 1 || strings.Contains(parts[0], ".") {
		// no team prefix
		return validation.Pass(v.Name())
	}

	requiredGroup, ok := v.groupPrefixes[parts[0]]
	if !ok {
		return validation.Pass(v.Name())
	}

	attrs, err := v.dir.Lookup(ctx, in.Caller.Subject)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return validation.Fail(v.Name(), ReasonGroupMismatch,
				"server prefix doesn't match user groups")
		}
		return validation.Errorf(v.Name(), ReasonDirectoryError,
			fmt.Sprintf("directory lookup failed: %v", err))
	}

	for _, group := range attrs.Groups {
		if group == requiredGroup {
			return validation.Pass(v.Name())
		}
	}
	return validation.Fail(v.Name(), ReasonGroupMismatch,
		"server prefix doesn't match user groups")
}
