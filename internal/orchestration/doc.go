// Package orchestration sequences a deployment request through its stages.
//
// # Workflow
//
// RunStages executes the following stages in order:
//  1. Preflight - tools, cloud credentials and input files
//  2. Backup - state snapshot before apply and destroy
//  3. Provision - init, workspace, validate, plan and apply or destroy
//  4. Inventory - outputs to Ansible inventory (apply only)
//  5. Configure - connectivity check and playbook run (apply only)
//  6. Verify - service and health checks (apply only)
//
// Stages that do not apply to a request skip themselves. The summary is
// built and written after the last stage whether the run succeeded or not.
//
// # Failure handling
//
// A Handler wraps the loop. A stage error makes a best-effort emergency copy
// of the state artifacts and ends the run; an interrupt cancels the run
// context, so the running tool is stopped and no further stage starts.
//
// # Usage
//
//	o := orchestration.New(cfg, timeouts, orchestration.Dependencies{
//	    Provisioning:  terraformAdapter,
//	    Configuration: ansibleAdapter,
//	}, log)
//	summary, err := o.Run(ctx, req)
//	os.Exit(deployment.ExitCode(err))
package orchestration
