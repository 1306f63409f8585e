package patch

import "fmt"

// ValidatePatchOperations rejects operations that are not replace/add on an allowed path.
func ValidatePatchOperations(ops []Operation, allowedPaths map[string]bool) error {
	for i, op := range ops {
		if op.Op != OperationReplace && op.Op != OperationAdd {
			return fmt.Errorf("operation %d: op %q is not permitted", i, op.Op)
		}
		if !allowedPaths[op.Path] {
			return fmt.Errorf("operation %d: path %q is not in the allowed paths set", i, op.Path)
		}
	}
	return nil
}
