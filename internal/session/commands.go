package session

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gyaneshwarpardhi/never2/internal/jobs"
	"github.com/gyaneshwarpardhi/never2/internal/network"
	"github.com/gyaneshwarpardhi/never2/internal/project"
	"github.com/gyaneshwarpardhi/never2/internal/property"
	"github.com/gyaneshwarpardhi/never2/internal/scene"
)

// Side names the boundary a property decorates.
type Side string

const (
	SidePre  Side = "pre"
	SidePost Side = "post"
)

func (sd Side) blockID() (string, error) {
	switch sd {
	case SidePre:
		return scene.InputBlockID, nil
	case SidePost:
		return scene.OutputBlockID, nil
	}
	return "", fmt.Errorf("%w: side %q", scene.ErrUnknownBlock, sd)
}

// Snapshot returns a copy of the scene.
func (s *Session) Snapshot(ctx context.Context) (scene.Snapshot, error) {
	var snap scene.Snapshot
	err := s.do(ctx, "snapshot", func() error {
		snap = s.scene.Snapshot()
		return nil
	})
	return snap, err
}

// mutate runs fn on the loop with the given confirmation answer and returns
// the resulting scene.
func (s *Session) mutate(ctx context.Context, name string, confirm bool, fn func() error) (scene.Snapshot, error) {
	var snap scene.Snapshot
	err := s.do(ctx, name, func() error {
		s.scene.SetConfirmer(confirmer(confirm))
		defer s.scene.SetConfirmer(nil)
		if err := fn(); err != nil {
			return err
		}
		snap = s.scene.Snapshot()
		s.publish(Event{Command: name, Scene: &snap})
		return nil
	})
	return snap, err
}

// AppendLayer appends a block of the catalog entry signature.
func (s *Session) AppendLayer(ctx context.Context, signature string, values map[string]string, confirm bool) (scene.Snapshot, error) {
	spec, err := s.catalog.Get(signature)
	if err != nil {
		return scene.Snapshot{}, &scene.ValidationError{Op: "append block", Err: err}
	}
	return s.mutate(ctx, "append_layer", confirm, func() error {
		_, err := s.scene.AppendLayerBlock(spec, values, nil)
		return err
	})
}

// UpdateLayer edits the parameters of the last layer.
func (s *Session) UpdateLayer(ctx context.Context, id string, values map[string]string, confirm bool) (scene.Snapshot, error) {
	return s.mutate(ctx, "update_layer", confirm, func() error {
		return s.scene.UpdateLayerParams(id, values)
	})
}

// RemoveLayer removes a block from the scene and its node from the network.
func (s *Session) RemoveLayer(ctx context.Context, id string, confirm bool) (scene.Snapshot, error) {
	return s.mutate(ctx, "remove_layer", confirm, func() error {
		return s.scene.RemoveBlock(id, true)
	})
}

// SetInput changes the input identifier and shape of an empty network.
func (s *Session) SetInput(ctx context.Context, identifier string, dim network.Shape) (scene.Snapshot, error) {
	return s.mutate(ctx, "set_input", false, func() error {
		return s.scene.SetInput(identifier, dim)
	})
}

// DefineProperty attaches def to one side.
func (s *Session) DefineProperty(ctx context.Context, side Side, def property.Definition, confirm bool) (scene.Snapshot, error) {
	id, err := side.blockID()
	if err != nil {
		return scene.Snapshot{}, err
	}
	return s.mutate(ctx, "define_property", confirm, func() error {
		return s.scene.DefineProperty(id, def)
	})
}

// RemoveProperty detaches the property of one side, if any.
func (s *Session) RemoveProperty(ctx context.Context, side Side) (scene.Snapshot, error) {
	if _, err := side.blockID(); err != nil {
		return scene.Snapshot{}, err
	}
	return s.mutate(ctx, "remove_property", false, func() error {
		if side == SidePre {
			s.scene.RemoveInProp()
		} else {
			s.scene.RemoveOutProp()
		}
		return nil
	})
}

// Clear discards the network and resets the scene. Unsaved changes are only
// discarded after confirmation.
func (s *Session) Clear(ctx context.Context, confirm bool) (scene.Snapshot, error) {
	return s.mutate(ctx, "clear", confirm, func() error {
		if s.project.Modified() && !confirm {
			return scene.ErrDeclined
		}
		s.project.Reset(s.conf.Scene.InputID, s.conf.Scene.InputDim)
		s.scene.ClearScene()
		return nil
	})
}

// Open replaces the network with the one stored at path and redraws the
// scene. A property file sharing the base name is loaded too.
func (s *Session) Open(ctx context.Context, path string, confirm bool) (scene.Snapshot, error) {
	return s.mutate(ctx, "open", confirm, func() error {
		if s.project.Modified() && !confirm {
			return scene.ErrDeclined
		}
		nn, in, err := s.project.Read(path)
		if err != nil {
			return err
		}
		if err := s.scene.CheckNetwork(nn); err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		s.project.Adopt(path, nn, in)
		if err := s.scene.DrawNetwork(); err != nil {
			return err
		}
		side := project.PropertiesPath(path)
		if _, err := os.Stat(side); err != nil {
			return nil
		}
		props, err := project.LoadProperties(side)
		if err == nil {
			err = s.scene.LoadProperties(props)
		}
		if err != nil {
			s.log.Warn("properties not loaded", "path", side, "error", err)
		}
		return nil
	})
}

// Save writes the network, and the properties when there are any.
func (s *Session) Save(ctx context.Context, path string) (string, error) {
	var saved string
	err := s.do(ctx, "save", func() error {
		pre, post := containerOf(s.scene.Pre()), containerOf(s.scene.Post())
		if err := s.project.Save(path, pre, post); err != nil {
			return err
		}
		saved = s.project.Path()
		return nil
	})
	return saved, err
}

// LoadProperties attaches the properties stored in an SMT-LIB file.
func (s *Session) LoadProperties(ctx context.Context, path string, confirm bool) (scene.Snapshot, error) {
	props, err := project.LoadProperties(path)
	if err != nil {
		return scene.Snapshot{}, &scene.ValidationError{Op: "load properties", Err: err}
	}
	return s.mutate(ctx, "load_properties", confirm, func() error {
		return s.scene.LoadProperties(props)
	})
}

func containerOf(pb *scene.PropertyBlock) *property.Container {
	if pb == nil {
		return nil
	}
	return pb.Container()
}

// StartJob snapshots the network and properties and submits a job. Verify
// needs a network and at least one property; train needs a network.
func (s *Session) StartJob(ctx context.Context, kind jobs.Kind, strategy string) (jobs.Job, error) {
	var job jobs.Job
	err := s.do(ctx, "start_job", func() error {
		nn := s.project.Network()
		if nn.IsEmpty() {
			return scene.ErrNoNetwork
		}
		req := &jobs.Request{
			Strategy: strategy,
			Network:  nn.Clone(),
			InputDim: s.project.InputDim(),
			Pre:      containerOf(s.scene.Pre()),
			Post:     containerOf(s.scene.Post()),
		}
		if kind == jobs.KindVerify && req.Pre == nil && req.Post == nil {
			return scene.ErrNoProperty
		}
		var err error
		job, err = s.runner.Submit(kind, req)
		return err
	})
	return job, err
}

// CurrentJob returns the running or last finished job.
func (s *Session) CurrentJob() (jobs.Job, bool) {
	return s.runner.Current()
}

// jobDone runs on the worker goroutine; everything touching the scene is
// posted to the loop.
func (s *Session) jobDone(job jobs.Job) {
	s.publish(Event{Command: "job_done", Job: &job})
	if job.Kind != jobs.KindTrain || job.Status != jobs.StatusSucceeded || job.Trained == nil {
		return
	}
	s.post("apply_trained", func() error {
		err := s.project.ReplaceNetwork(job.Trained)
		if errors.Is(err, project.ErrStale) {
			s.log.Warn("trained network discarded", "job", job.ID, "error", err)
			return nil
		}
		if err != nil {
			return err
		}
		s.scene.Refresh()
		s.publishScene("apply_trained")
		s.log.Info("trained network applied", "job", job.ID)
		return nil
	})
}
