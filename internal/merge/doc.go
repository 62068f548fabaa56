// Package merge orchestrates the review and merge of one duplicate group.
//
// A Workspace loads the comparison, lets the user pick a master and per-field
// sources, and sends the merge once confirmed. It ends in PhaseMerged on
// success and stays open until the host closes it; failures surface as
// notifications and leave the workspace ready for a retry.
package merge
