package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE automations (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automations_active ON automations(active);

			CREATE TABLE automation_contents (
				id UUID PRIMARY KEY,
				automation_id UUID NOT NULL REFERENCES automations(id) ON DELETE CASCADE,
				description TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automation_contents_automation_id ON automation_contents(automation_id);

			CREATE TABLE triggers (
				id UUID PRIMARY KEY,
				content_id UUID NOT NULL REFERENCES automation_contents(id) ON DELETE CASCADE,
				slot VARCHAR(255) NOT NULL,
				type VARCHAR(100) NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				position INT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_triggers_content_id ON triggers(content_id);

			-- Step trees are stored flat, one row per node, the way the
			-- surrounding placeholder system persists plugin trees.
			CREATE TABLE steps (
				id VARCHAR(255) PRIMARY KEY,
				content_id UUID NOT NULL REFERENCES automation_contents(id) ON DELETE CASCADE,
				slot VARCHAR(255) NOT NULL,
				parent_id VARCHAR(255) REFERENCES steps(id) ON DELETE CASCADE,
				position INT NOT NULL DEFAULT 0,
				kind VARCHAR(100) NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				comment TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_steps_content_id ON steps(content_id);
			CREATE INDEX idx_steps_parent_id ON steps(parent_id);

			CREATE TABLE instances (
				id UUID PRIMARY KEY,
				content_id UUID NOT NULL REFERENCES automation_contents(id) ON DELETE CASCADE,
				initial_data JSONB NOT NULL DEFAULT '{}',
				data JSONB NOT NULL DEFAULT '{}',
				key VARCHAR(64) NOT NULL DEFAULT '',
				testing BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_instances_content_id ON instances(content_id);
			CREATE INDEX idx_instances_key ON instances(key);
			CREATE INDEX idx_instances_created_at ON instances(created_at);

			CREATE TABLE actions (
				id UUID PRIMARY KEY,
				instance_id UUID NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
				plugin_ptr VARCHAR(255) NOT NULL,
				state VARCHAR(20) NOT NULL,
				previous_id UUID REFERENCES actions(id) ON DELETE SET NULL,
				parent_id UUID REFERENCES actions(id) ON DELETE SET NULL,
				paused_until TIMESTAMP WITH TIME ZONE,
				locked INT NOT NULL DEFAULT 0,
				requires_interaction BOOLEAN NOT NULL DEFAULT FALSE,
				interaction_user_id VARCHAR(255),
				interaction_group_id VARCHAR(255),
				interaction_permissions JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished TIMESTAMP WITH TIME ZONE,
				message TEXT NOT NULL DEFAULT '',
				result JSONB NOT NULL DEFAULT '{}'
			);

			CREATE INDEX idx_actions_instance_id ON actions(instance_id);
			CREATE INDEX idx_actions_parent_id ON actions(parent_id);
			CREATE INDEX idx_actions_previous_id ON actions(previous_id);
			CREATE INDEX idx_actions_state ON actions(state);
			CREATE INDEX idx_actions_finished ON actions(finished);
			CREATE INDEX idx_actions_paused_until ON actions(paused_until);

			CREATE TABLE api_keys (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				service VARCHAR(100) NOT NULL,
				key TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_api_keys_service ON api_keys(service);
		`,
		2: `
			ALTER TABLE actions ADD COLUMN claimed_at TIMESTAMP WITH TIME ZONE;
		`,
	}
}
