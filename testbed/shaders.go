package testbed

// Built-in sources of the demo passes. When a shader directory is set they are
// written there on first use and the files on disk take over, so they can be
// edited while the testbed runs.

const particlesComp = `#version 450
layout(local_size_x = 64) in;

struct Particle {
	vec4 pos;
	vec4 vel;
};

layout(std430, binding = 0) buffer Particles { Particle particles[]; };
layout(std140, binding = 1) uniform Params {
	float u_time;
	float u_delta;
	uint u_count;
	float u_damping;
	float u_swirl;
};

void main() {
	uint i = gl_GlobalInvocationID.x;
	if (i >= u_count) {
		return;
	}
	Particle p = particles[i];
	vec2 toCenter = -p.pos.xy;
	vec2 swirl = vec2(-p.pos.y, p.pos.x) * u_swirl * (1.0 + 0.25 * sin(u_time));
	p.vel.xy += (toCenter * 0.5 + swirl) * u_delta;
	p.vel.xy *= u_damping;
	p.pos.xy += p.vel.xy * u_delta;
	p.pos.w = length(p.vel.xy);
	particles[i] = p;
}
`

const pointsVert = `#version 450
struct Particle {
	vec4 pos;
	vec4 vel;
};

layout(std430, binding = 0) readonly buffer Particles { Particle particles[]; };
layout(std140, binding = 1) uniform Params {
	float u_point_size;
	float u_aspect;
	float u_speed_scale;
};
layout(location = 0) out vec4 vColor;

void main() {
	Particle p = particles[gl_VertexIndex];
	gl_Position = vec4(p.pos.x / max(u_aspect, 0.0001), p.pos.y, 0.0, 1.0);
	gl_PointSize = u_point_size;
	float s = clamp(p.pos.w * u_speed_scale, 0.0, 1.0);
	vColor = vec4(mix(vec3(0.2, 0.4, 1.0), vec3(1.0, 0.6, 0.2), s), 1.0);
}
`

const pointsFrag = `#version 450
layout(location = 0) in vec4 vColor;
layout(location = 0) out vec4 fragColor;

void main() {
	vec2 d = gl_PointCoord - vec2(0.5);
	float a = 1.0 - smoothstep(0.2, 0.5, length(d));
	fragColor = vec4(vColor.rgb, vColor.a * a);
}
`

const quadVert = `#version 450
layout(location = 0) in vec2 aPosition;
layout(location = 1) in vec2 aUV;
layout(location = 0) out vec2 vUV;

void main() {
	vUV = aUV;
	gl_Position = vec4(aPosition, 0.0, 1.0);
}
`

const gradingFrag = `#version 450
layout(location = 0) in vec2 vUV;
layout(location = 0) out vec4 fragColor;

layout(std140, binding = 0) uniform Params {
	float u_gain;
	float u_exposure;
	float u_use_input;
	float u_use_lut;
	vec3 u_tint;
	float u_vignette;
};
layout(binding = 1) uniform sampler2D u_input;
layout(binding = 2) uniform sampler2D u_lut;

vec3 curve(vec3 c) {
	return vec3(
		texture(u_lut, vec2(c.r, 0.5)).r,
		texture(u_lut, vec2(c.g, 0.5)).g,
		texture(u_lut, vec2(c.b, 0.5)).b);
}

void main() {
	vec3 c = mix(vec3(0.05), texture(u_input, vUV).rgb, u_use_input);
	c *= exp2(u_exposure) * u_gain * u_tint;
	c = c / (1.0 + c);
	c = mix(c, curve(clamp(c, 0.0, 1.0)), u_use_lut);
	float r = length(vUV - vec2(0.5));
	c *= 1.0 - u_vignette * smoothstep(0.3, 0.8, r);
	fragColor = vec4(c, 1.0);
}
`
