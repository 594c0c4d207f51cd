package db

import (
	"database/sql"
	"fmt"
)

// AdapterConfig represents a serial port configuration for a capture adapter
type AdapterConfig struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	PortPath      string `json:"port_path"`
	BaudRate      int    `json:"baud_rate"`
	DataBits      int    `json:"data_bits"`
	StopBits      int    `json:"stop_bits"`
	Parity        string `json:"parity"`
	TickRateHz    int    `json:"tick_rate_hz"`
	Enabled       bool   `json:"enabled"`
	Description   string `json:"description"`
	ReceiverModel string `json:"receiver_model"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// GetAdapterConfigs returns all adapter configurations
func (db *DB) GetAdapterConfigs() ([]AdapterConfig, error) {
	query := `SELECT id, name, port_path, baud_rate, data_bits, stop_bits, parity, tick_rate_hz, enabled, description, receiver_model, created_at, updated_at
	          FROM adapter_serial_config
	          ORDER BY created_at ASC`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query adapter configs: %w", err)
	}
	defer rows.Close()

	var configs []AdapterConfig
	for rows.Next() {
		var c AdapterConfig
		var enabled int
		err := rows.Scan(&c.ID, &c.Name, &c.PortPath, &c.BaudRate, &c.DataBits, &c.StopBits,
			&c.Parity, &c.TickRateHz, &enabled, &c.Description, &c.ReceiverModel, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan adapter config: %w", err)
		}
		c.Enabled = enabled == 1
		configs = append(configs, c)
	}

	return configs, nil
}

// GetAdapterConfig returns a single adapter configuration by ID
func (db *DB) GetAdapterConfig(id int) (*AdapterConfig, error) {
	query := `SELECT id, name, port_path, baud_rate, data_bits, stop_bits, parity, tick_rate_hz, enabled, description, receiver_model, created_at, updated_at
	          FROM adapter_serial_config
	          WHERE id = ?`

	var c AdapterConfig
	var enabled int
	err := db.QueryRow(query, id).Scan(&c.ID, &c.Name, &c.PortPath, &c.BaudRate, &c.DataBits,
		&c.StopBits, &c.Parity, &c.TickRateHz, &enabled, &c.Description, &c.ReceiverModel, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get adapter config: %w", err)
	}

	c.Enabled = enabled == 1
	return &c, nil
}

// GetEnabledAdapterConfigs returns all enabled adapter configurations
func (db *DB) GetEnabledAdapterConfigs() ([]AdapterConfig, error) {
	query := `SELECT id, name, port_path, baud_rate, data_bits, stop_bits, parity, tick_rate_hz, enabled, description, receiver_model, created_at, updated_at
	          FROM adapter_serial_config
	          WHERE enabled = 1
	          ORDER BY created_at ASC`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled adapter configs: %w", err)
	}
	defer rows.Close()

	var configs []AdapterConfig
	for rows.Next() {
		var c AdapterConfig
		var enabled int
		err := rows.Scan(&c.ID, &c.Name, &c.PortPath, &c.BaudRate, &c.DataBits, &c.StopBits,
			&c.Parity, &c.TickRateHz, &enabled, &c.Description, &c.ReceiverModel, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan adapter config: %w", err)
		}
		c.Enabled = enabled == 1
		configs = append(configs, c)
	}

	return configs, nil
}

// CreateAdapterConfig creates a new adapter configuration
func (db *DB) CreateAdapterConfig(c *AdapterConfig) (int64, error) {
	query := `INSERT INTO adapter_serial_config (name, port_path, baud_rate, data_bits, stop_bits, parity, tick_rate_hz, enabled, description, receiver_model)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	enabled := 0
	if c.Enabled {
		enabled = 1
	}

	result, err := db.Exec(query, c.Name, c.PortPath, c.BaudRate, c.DataBits, c.StopBits,
		c.Parity, c.TickRateHz, enabled, c.Description, c.ReceiverModel)
	if err != nil {
		return 0, fmt.Errorf("failed to create adapter config: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// UpdateAdapterConfig updates an existing adapter configuration
func (db *DB) UpdateAdapterConfig(c *AdapterConfig) error {
	query := `UPDATE adapter_serial_config
	          SET name = ?, port_path = ?, baud_rate = ?, data_bits = ?, stop_bits = ?,
	              parity = ?, tick_rate_hz = ?, enabled = ?, description = ?, receiver_model = ?,
	              updated_at = UNIXEPOCH()
	          WHERE id = ?`

	enabled := 0
	if c.Enabled {
		enabled = 1
	}

	result, err := db.Exec(query, c.Name, c.PortPath, c.BaudRate, c.DataBits, c.StopBits,
		c.Parity, c.TickRateHz, enabled, c.Description, c.ReceiverModel, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update adapter config: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("adapter config with ID %d not found", c.ID)
	}

	return nil
}

// DeleteAdapterConfig deletes an adapter configuration
func (db *DB) DeleteAdapterConfig(id int) error {
	query := `DELETE FROM adapter_serial_config WHERE id = ?`

	result, err := db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete adapter config: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("adapter config with ID %d not found", id)
	}

	return nil
}
