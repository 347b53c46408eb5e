// Package reconcile tags lead data sheet rows with their CRM contact and
// location ids.
//
// The Driver walks every registered location in order and, for each one not
// already done, runs it through a fixed sequence of outcomes:
//
//	Skipped        location already done; no spreadsheet calls at all
//	Opened         sheet opened through the gateway
//	SchemaInvalid  a required column is missing; marked error, nothing written
//	Matched        every data row resolved (or left as-is)
//	Written        one batch write of the two id columns; marked done
//	Failed         open or write failed for good; marked error
//
// Locations are processed one at a time. A failure scoped to one location is
// recorded and the run moves on; only contact store failures and context
// cancellation end the run early. Progress is checkpointed per location, so
// a killed run resumes from the first location not yet done.
//
// Usage:
//
//	gw := gateway.NewWithConfig(backend, gwConfig)
//	driver := reconcile.New(database, gw, nil)
//	report, err := driver.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%d done, %d errored\n", report.Count(reconcile.Written), report.Errored())
package reconcile
