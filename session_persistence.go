package main

import (
	"encoding/gob"
	"io"
	"log"
	"os"
	"path/filepath"
)

const defaultSessionPath = "session_logs/skill_session.gob"

func sessionPath() string {
	if path := os.Getenv("CHESSVISION_SESSION_PATH"); path != "" {
		return path
	}
	return defaultSessionPath
}

func loadPersistedSession(estimator *SkillEstimator) {
	if !GetConfig().PersistSession {
		return
	}
	state, err := loadSessionFile(sessionPath())
	if err != nil {
		log.Printf("[backend] load session: %v", err)
		return
	}
	if state != nil {
		estimator.importSession(*state)
		log.Printf("[backend] restored skill session (%d samples)", len(state.Samples))
	}
}

func persistSession(estimator *SkillEstimator) {
	if !GetConfig().PersistSession {
		return
	}
	path := sessionPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("[backend] ensure session dir: %v", err)
		return
	}
	if err := saveSessionFile(path, estimator.exportSession()); err != nil {
		log.Printf("[backend] persist session: %v", err)
	}
}

func saveSessionFile(path string, state sessionState) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return gob.NewEncoder(file).Encode(state)
}

func loadSessionFile(path string) (*sessionState, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	var state sessionState
	if err := gob.NewDecoder(file).Decode(&state); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			// Truncated dump from a crashed run; discard it.
			file.Close()
			os.Remove(path)
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}
