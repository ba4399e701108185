package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mcoot/sailsync/internal/model"
)

// Player hash field names
const (
	fieldID           = "id"
	fieldName         = "name"
	fieldColor        = "color"
	fieldPosition     = "position"
	fieldRotation     = "rotation"
	fieldMode         = "mode"
	fieldFishCount    = "fishCount"
	fieldMonsterKills = "monsterKills"
	fieldMoney        = "money"
	fieldActive       = "active"
	fieldLastUpdate   = "lastUpdate"
	fieldCreatedAt    = "createdAt"
	fieldUpdatedAt    = "updatedAt"
)

// patchFields encodes the set fields of a patch as hash values
func patchFields(patch model.PlayerPatch) (map[string]any, error) {
	fields := make(map[string]any)
	if patch.Name != nil {
		fields[fieldName] = *patch.Name
	}
	if patch.Color != nil {
		data, err := json.Marshal(patch.Color)
		if err != nil {
			return nil, err
		}
		fields[fieldColor] = string(data)
	}
	if patch.Position != nil {
		data, err := json.Marshal(patch.Position)
		if err != nil {
			return nil, err
		}
		fields[fieldPosition] = string(data)
	}
	if patch.Rotation != nil {
		fields[fieldRotation] = strconv.FormatFloat(*patch.Rotation, 'g', -1, 64)
	}
	if patch.Mode != nil {
		fields[fieldMode] = string(*patch.Mode)
	}
	if patch.FishCount != nil {
		fields[fieldFishCount] = *patch.FishCount
	}
	if patch.MonsterKills != nil {
		fields[fieldMonsterKills] = *patch.MonsterKills
	}
	if patch.Money != nil {
		fields[fieldMoney] = *patch.Money
	}
	if patch.Active != nil {
		fields[fieldActive] = strconv.FormatBool(*patch.Active)
	}
	if patch.LastUpdate != nil {
		fields[fieldLastUpdate] = patch.LastUpdate.Format(time.RFC3339Nano)
	}
	if patch.UpdatedAt != nil {
		fields[fieldUpdatedAt] = patch.UpdatedAt.Format(time.RFC3339Nano)
	}
	return fields, nil
}

// playerFields encodes a complete player record
func playerFields(p *model.Player) (map[string]any, error) {
	fields, err := patchFields(model.FullPatch(p))
	if err != nil {
		return nil, err
	}
	fields[fieldID] = string(p.ID)
	fields[fieldUpdatedAt] = p.UpdatedAt.Format(time.RFC3339Nano)
	fields[fieldCreatedAt] = p.CreatedAt.Format(time.RFC3339Nano)
	return fields, nil
}

// counterScores returns the leaderboard scores carried by a patch
func counterScores(patch model.PlayerPatch) map[model.Counter]int64 {
	scores := make(map[model.Counter]int64)
	if patch.FishCount != nil {
		scores[model.CounterFish] = *patch.FishCount
	}
	if patch.MonsterKills != nil {
		scores[model.CounterMonsters] = *patch.MonsterKills
	}
	if patch.Money != nil {
		scores[model.CounterMoney] = *patch.Money
	}
	return scores
}

// decodePlayer rebuilds a player from its hash. Missing fields keep zero values.
func decodePlayer(values map[string]string) (*model.Player, error) {
	p := &model.Player{
		ID:   model.PlayerID(values[fieldID]),
		Name: values[fieldName],
		Mode: model.Mode(values[fieldMode]),
	}

	if v, ok := values[fieldColor]; ok {
		if err := json.Unmarshal([]byte(v), &p.Color); err != nil {
			return nil, fmt.Errorf("decode color: %w", err)
		}
	}
	if v, ok := values[fieldPosition]; ok {
		if err := json.Unmarshal([]byte(v), &p.Position); err != nil {
			return nil, fmt.Errorf("decode position: %w", err)
		}
	}

	var err error
	if p.Rotation, err = parseFloat(values, fieldRotation); err != nil {
		return nil, err
	}
	if p.FishCount, err = parseInt(values, fieldFishCount); err != nil {
		return nil, err
	}
	if p.MonsterKills, err = parseInt(values, fieldMonsterKills); err != nil {
		return nil, err
	}
	if p.Money, err = parseInt(values, fieldMoney); err != nil {
		return nil, err
	}
	if v, ok := values[fieldActive]; ok {
		if p.Active, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", fieldActive, err)
		}
	}
	if p.LastUpdate, err = parseTime(values, fieldLastUpdate); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(values, fieldCreatedAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(values, fieldUpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func parseFloat(values map[string]string, field string) (float64, error) {
	v, ok := values[field]
	if !ok {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", field, err)
	}
	return f, nil
}

func parseInt(values map[string]string, field string) (int64, error) {
	v, ok := values[field]
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", field, err)
	}
	return n, nil
}

func parseTime(values map[string]string, field string) (time.Time, error) {
	v, ok := values[field]
	if !ok || v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode %s: %w", field, err)
	}
	return t, nil
}
